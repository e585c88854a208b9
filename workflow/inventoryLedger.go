package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const inventoryLockType = "inventory-apply"
const inventoryLockTTL = 10 * time.Second

// MovementInput describes one ledger append. Qty is signed: negative deducts,
// positive restocks.
type MovementInput struct {
	BusinessId      string
	BranchId        int
	IngredientId    int
	Qty             decimal.Decimal
	Unit            string
	ReferenceType   models.MovementReferenceType
	ReferenceId     int
	ReferenceLineId int
	UnitCost        decimal.Decimal
	EffectiveDate   time.Time

	IsReversal         bool
	ReversesMovementId *string
	ReversalReason     *string

	CorrelationId string
}

// ApplyMovement appends one movement row and refreshes the stock summary
// projection inside the caller's transaction. A redis advisory lock keyed on
// (business, ingredient) serializes concurrent applies across instances; the
// ledger sum inside the transaction is the backstop.
//
// The lock is released when this returns, which is before the caller's
// transaction commits. Under READ COMMITTED a second apply in that window can
// compute its PreviousStock/NewStock snapshots and the projection without
// seeing the first apply's still-uncommitted row. The ledger SUM itself stays
// consistent (the row lands either way); the snapshots are best-effort audit
// fields and cmd/inventory-rebuild recomputes the projection from the ledger.
//
// Negative resulting stock is permitted (the POS already sold the item; the
// oversell is logged, never blocked).
func ApplyMovement(ctx context.Context, tx *gorm.DB, input *MovementInput) (*models.InventoryMovement, error) {
	var movement *models.InventoryMovement

	lockKey := fmt.Sprintf("%s:%d", input.BusinessId, input.IngredientId)
	err := utils.WithResourceLock(ctx, inventoryLockType, lockKey, inventoryLockTTL, func() error {
		previous, err := models.LedgerStockSum(tx, input.BusinessId, input.BranchId, input.IngredientId)
		if err != nil {
			return err
		}
		newStock := previous.Add(input.Qty)

		row := models.InventoryMovement{
			ID:                 uuid.NewString(),
			BusinessId:         input.BusinessId,
			BranchId:           input.BranchId,
			IngredientId:       input.IngredientId,
			Qty:                input.Qty,
			Unit:               input.Unit,
			ReferenceType:      input.ReferenceType,
			ReferenceId:        input.ReferenceId,
			ReferenceLineId:    input.ReferenceLineId,
			UnitCost:           input.UnitCost,
			TotalCost:          input.Qty.Abs().Mul(input.UnitCost),
			PreviousStock:      previous,
			NewStock:           newStock,
			IsReversal:         input.IsReversal,
			ReversesMovementId: input.ReversesMovementId,
			ReversalReason:     input.ReversalReason,
			EffectiveDate:      input.EffectiveDate,
			CorrelationId:      input.CorrelationId,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if _, err := models.RefreshStockSummary(tx, input.BusinessId, input.BranchId, input.IngredientId); err != nil {
			return err
		}

		if newStock.IsNegative() && !previous.IsNegative() {
			config.LogWarn(config.GetLogger(), "workflow", "ApplyMovement", "oversell", map[string]interface{}{
				"business_id":   input.BusinessId,
				"branch_id":     input.BranchId,
				"ingredient_id": input.IngredientId,
				"new_stock":     newStock.String(),
			}, "ingredient stock went negative")
		}

		movement = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// ReverseMovements appends a compensating movement for every non-reversed row
// referencing (refType, refId) and marks the originals reversed. Originals are
// never deleted; re-running on an already-reversed sale finds nothing to do.
func ReverseMovements(ctx context.Context, tx *gorm.DB, businessId string, refType models.MovementReferenceType, refId int, reason string, correlationId string) ([]models.InventoryMovement, error) {
	var originals []models.InventoryMovement
	err := tx.
		Where("business_id = ? AND reference_type = ? AND reference_id = ? AND is_reversal = ? AND reversed_by_movement_id IS NULL",
			businessId, refType, refId, false).
		Order("id").
		Find(&originals).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	reversals := make([]models.InventoryMovement, 0, len(originals))
	for i := range originals {
		original := &originals[i]
		reversal, err := ApplyMovement(ctx, tx, &MovementInput{
			BusinessId:         businessId,
			BranchId:           original.BranchId,
			IngredientId:       original.IngredientId,
			Qty:                original.Qty.Neg(),
			Unit:               original.Unit,
			ReferenceType:      models.MovementReferenceCancellation,
			ReferenceId:        refId,
			ReferenceLineId:    original.ReferenceLineId,
			UnitCost:           original.UnitCost,
			EffectiveDate:      now,
			IsReversal:         true,
			ReversesMovementId: &original.ID,
			ReversalReason:     utils.NilIfEmpty(reason),
			CorrelationId:      correlationId,
		})
		if err != nil {
			return nil, err
		}

		err = tx.Model(original).Updates(map[string]interface{}{
			"ReversedByMovementId": reversal.ID,
			"ReversedAt":           &now,
		}).Error
		if err != nil {
			return nil, err
		}
		reversals = append(reversals, *reversal)
	}
	return reversals, nil
}
