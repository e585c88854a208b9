package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClassifyStockLevel grades current stock against the ingredient's thresholds.
// ok=false means the level needs no alert.
func ClassifyStockLevel(current decimal.Decimal, minimumStock decimal.Decimal, reorderPoint decimal.Decimal) (models.AlertType, models.AlertSeverity, bool) {
	if current.LessThanOrEqual(decimal.Zero) {
		return models.AlertTypeOutOfStock, models.AlertSeverityCritical, true
	}
	if !minimumStock.IsZero() && current.LessThanOrEqual(minimumStock) {
		return models.AlertTypeLowStock, models.AlertSeverityCritical, true
	}
	if !reorderPoint.IsZero() && current.LessThanOrEqual(reorderPoint) {
		return models.AlertTypeApproaching, models.AlertSeverityWarning, true
	}
	return "", "", false
}

// EvaluateStockAlert upserts the single active alert for (branch, ingredient)
// after a stock change. Healthy stock is a no-op: an existing active alert is
// never auto-resolved here, resolution is an explicit restock acknowledgment.
func EvaluateStockAlert(ctx context.Context, tx *gorm.DB, businessId string, branchId int, ingredient *models.Ingredient, currentStock decimal.Decimal) error {
	alertType, severity, needed := ClassifyStockLevel(currentStock, ingredient.MinimumStock, ingredient.ReorderPoint)
	if !needed {
		return nil
	}

	suggested := ingredient.ReorderPoint.Sub(currentStock)
	if suggested.IsNegative() {
		suggested = decimal.Zero
	}

	updateActive := func() (bool, error) {
		var alert models.LowStockAlert
		err := tx.
			Where("business_id = ? AND branch_id = ? AND ingredient_id = ? AND status = ?",
				businessId, branchId, ingredient.ID, models.AlertStatusActive).
			Take(&alert).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, tx.Model(&alert).Updates(map[string]interface{}{
			"AlertType":    alertType,
			"Severity":     severity,
			"CurrentStock": currentStock,
			"ReorderPoint": ingredient.ReorderPoint,
			"SuggestedQty": suggested,
		}).Error
	}

	if updated, err := updateActive(); updated || err != nil {
		return err
	}

	activeKey := string(models.AlertStatusActive)
	alert := models.LowStockAlert{
		BusinessId:   businessId,
		BranchId:     branchId,
		IngredientId: ingredient.ID,
		ActiveKey:    &activeKey,
		AlertType:    alertType,
		Severity:     severity,
		CurrentStock: currentStock,
		ReorderPoint: ingredient.ReorderPoint,
		SuggestedQty: suggested,
		Status:       models.AlertStatusActive,
	}
	err := tx.Create(&alert).Error
	if IsDuplicateKeyErr(err) {
		// A concurrent evaluation inserted the open alert first; the unique
		// index on active_key made this insert lose. Fold into that row.
		_, err = updateActive()
		return err
	}
	return err
}

// ResolveAlertOnRestock closes active alerts for (branch, ingredient) once a
// restock movement brings the level back above the reorder point.
func ResolveAlertOnRestock(ctx context.Context, tx *gorm.DB, businessId string, branchId int, ingredient *models.Ingredient, currentStock decimal.Decimal) error {
	if _, _, stillLow := ClassifyStockLevel(currentStock, ingredient.MinimumStock, ingredient.ReorderPoint); stillLow {
		return nil
	}
	now := time.Now()
	return tx.Model(&models.LowStockAlert{}).
		Where("business_id = ? AND branch_id = ? AND ingredient_id = ? AND status IN ?",
			businessId, branchId, ingredient.ID, []models.AlertStatus{models.AlertStatusActive, models.AlertStatusAcknowledged}).
		Updates(map[string]interface{}{
			"Status":       models.AlertStatusResolved,
			"ActiveKey":    nil,
			"CurrentStock": currentStock,
			"ResolvedAt":   &now,
		}).Error
}

// ApplyRestock records a manual positive stock movement and resolves any open
// alert the new level clears.
func ApplyRestock(ctx context.Context, tx *gorm.DB, businessId string, branchId int, ingredient *models.Ingredient, qty decimal.Decimal, referenceId int, correlationId string) (*models.InventoryMovement, error) {
	movement, err := ApplyMovement(ctx, tx, &MovementInput{
		BusinessId:    businessId,
		BranchId:      branchId,
		IngredientId:  ingredient.ID,
		Qty:           qty,
		Unit:          ingredient.Unit,
		ReferenceType: models.MovementReferenceManual,
		ReferenceId:   referenceId,
		UnitCost:      ingredient.UnitCost,
		EffectiveDate: time.Now(),
		CorrelationId: correlationId,
	})
	if err != nil {
		return nil, err
	}
	if err := ResolveAlertOnRestock(ctx, tx, businessId, branchId, ingredient, movement.NewStock); err != nil {
		return nil, err
	}
	return movement, nil
}
