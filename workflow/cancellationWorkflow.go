package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"gorm.io/gorm"
)

// CancelSale compensates one previously ingested sale: the sale flips to
// cancelled and every ledger movement it produced gets a negated counterpart.
// Idempotent: cancelling an already-cancelled sale is a success no-op, and the
// reversal query only sees movements not yet reversed.
//
// Alerts are re-evaluated for the restored ingredients but never auto-resolved;
// a cancellation is not a restock decision.
func CancelSale(ctx context.Context, conn *models.PosConnection, externalId string, cancelType models.CancellationType, reason string, correlationId string) (*models.PosSale, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	var sale models.PosSale
	err := db.WithContext(ctx).
		Where("business_id = ? AND connection_id = ? AND external_id = ?", conn.BusinessId, conn.ID, externalId).
		Order("id DESC").
		First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = models.CreateProcessingLog(ctx, db, &models.PosProcessingLog{
				BusinessId:    conn.BusinessId,
				ConnectionId:  conn.ID,
				ExternalId:    externalId,
				EntityType:    "cancellation",
				Outcome:       models.SaleOutcomeFailed,
				ErrorCode:     models.LogErrorCodeCancellationNotFound,
				Message:       "no sale for external id",
				CorrelationId: correlationId,
			})
			return nil, ErrSaleNotFound
		}
		return nil, err
	}

	if sale.CurrentStatus == models.SaleStatusCancelled {
		return &sale, nil
	}
	if !sale.CurrentStatus.CanTransitionTo(models.SaleStatusCancelled) {
		return nil, errors.New("sale cannot be cancelled from status " + string(sale.CurrentStatus))
	}

	now := time.Now()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&sale).Updates(map[string]interface{}{
			"CurrentStatus":      models.SaleStatusCancelled,
			"CancellationType":   cancelType,
			"CancelledAt":        &now,
			"CancellationReason": utils.NilIfEmpty(reason),
		}).Error
		if err != nil {
			return err
		}

		reversals, err := ReverseMovements(ctx, tx, conn.BusinessId, models.MovementReferenceSale, sale.ID, reason, correlationId)
		if err != nil {
			return err
		}

		for i := range reversals {
			var ingredient models.Ingredient
			err := tx.
				Where("business_id = ? AND id = ?", conn.BusinessId, reversals[i].IngredientId).
				Take(&ingredient).Error
			if err != nil {
				return err
			}
			if err := EvaluateStockAlert(ctx, tx, conn.BusinessId, reversals[i].BranchId, &ingredient, reversals[i].NewStock); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "workflow", "CancelSale", "reverse sale", externalId, err)
		_ = models.CreateProcessingLog(ctx, db, &models.PosProcessingLog{
			BusinessId:    conn.BusinessId,
			ConnectionId:  conn.ID,
			SaleId:        &sale.ID,
			ExternalId:    externalId,
			EntityType:    "cancellation",
			Outcome:       models.SaleOutcomeFailed,
			ErrorCode:     models.LogErrorCodeStorageFailed,
			Message:       err.Error(),
			Retryable:     true,
			CorrelationId: correlationId,
		})
		return nil, err
	}

	_ = models.CreateProcessingLog(ctx, db, &models.PosProcessingLog{
		BusinessId:    conn.BusinessId,
		ConnectionId:  conn.ID,
		SaleId:        &sale.ID,
		ExternalId:    externalId,
		EntityType:    "cancellation",
		Outcome:       models.SaleOutcomeProcessed,
		CorrelationId: correlationId,
	})
	return &sale, nil
}
