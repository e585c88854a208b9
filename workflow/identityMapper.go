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

// ResolveWarehouse maps a POS warehouse code to an internal branch id.
// Falls back to the connection's default branch; with neither it is a hard
// error, because stock movements without a real branch would corrupt per-branch
// inventory.
func ResolveWarehouse(ctx context.Context, conn *models.PosConnection, warehouseCode string) (int, error) {
	db := config.GetDB()

	var mapping models.WarehouseMapping
	err := db.WithContext(ctx).
		Where("business_id = ? AND connection_id = ? AND warehouse_code = ?", conn.BusinessId, conn.ID, warehouseCode).
		Take(&mapping).Error
	if err == nil {
		return mapping.BranchId, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	if conn.DefaultBranchId != nil {
		return *conn.DefaultBranchId, nil
	}
	return 0, ErrUnmappedWarehouse
}

// ResolveProduct maps a POS product code to the internal catalog product id.
// A pure miss is not an error: the first sighting of an unknown code upserts an
// unmapped ProductMapping row (product id NULL, confidence auto) for a human to
// complete later, and the caller records the line as not deducted.
func ResolveProduct(ctx context.Context, tx *gorm.DB, conn *models.PosConnection, externalId string, externalName string) (*int, error) {
	now := time.Now()

	var mapping models.ProductMapping
	err := tx.
		Where("business_id = ? AND connection_id = ? AND external_id = ?", conn.BusinessId, conn.ID, externalId).
		Take(&mapping).Error
	if err == nil {
		updates := map[string]interface{}{"LastSeenAt": &now}
		if externalName != "" && externalName != mapping.ExternalName {
			updates["ExternalName"] = externalName
		}
		if err := tx.Model(&mapping).Updates(updates).Error; err != nil {
			return nil, err
		}
		if !utils.DereferencePtr(mapping.IsActive, true) {
			return nil, nil
		}
		return mapping.ProductId, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	mapping = models.ProductMapping{
		BusinessId:   conn.BusinessId,
		ConnectionId: conn.ID,
		ExternalId:   externalId,
		ExternalName: externalName,
		Confidence:   models.MappingConfidenceAuto,
		IsActive:     utils.NewTrue(),
		LastSeenAt:   &now,
	}
	if err := tx.Create(&mapping).Error; err != nil {
		// Concurrent first sighting of the same code: the unique index picks a
		// winner, both sales read the surviving row.
		if IsDuplicateKeyErr(err) {
			err = tx.
				Where("business_id = ? AND connection_id = ? AND external_id = ?", conn.BusinessId, conn.ID, externalId).
				Take(&mapping).Error
			if err != nil {
				return nil, err
			}
			return mapping.ProductId, nil
		}
		return nil, err
	}
	return nil, nil
}

// ResolvePaymentMethod maps a POS tender name to a PaymentMode id. Soft miss:
// unknown methods return nil so the payment amount is still recorded.
func ResolvePaymentMethod(ctx context.Context, businessId string, methodName string) (*int, error) {
	if methodName == "" {
		return nil, nil
	}
	db := config.GetDB()

	var mode models.PaymentMode
	err := db.WithContext(ctx).
		Where("business_id = ? AND name = ? AND is_active = ?", businessId, methodName, true).
		Take(&mode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mode.ID, nil
}
