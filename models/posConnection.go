package models

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"gorm.io/gorm"
)

const (
	IntegrationProviderSR = "sr"
)

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

// PosConnection is one tenant's link to the SR restaurant POS.
// SourceCompanyId is the POS-side tenant identifier; every inbound payload must
// carry it, and a mismatch rejects the whole batch.
type PosConnection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	BusinessId        string     `gorm:"index;not null" json:"business_id"`
	Provider          string     `gorm:"index;size:50;not null" json:"provider"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	SourceCompanyId   string     `gorm:"size:100;not null" json:"source_company_id"`
	AuthSecretRef     string     `gorm:"type:text" json:"auth_secret_ref"`
	StoreName         string     `gorm:"size:255" json:"store_name"`
	DefaultBranchId   *int       `json:"default_branch_id"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	CursorStateJSON   []byte     `gorm:"type:json" json:"cursor_state"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConnectionSettings lives in SettingsJSON. Zero values defer to the
// config-level defaults.
type ConnectionSettings struct {
	RecipeDeduction *bool  `json:"recipe_deduction,omitempty"`
	UniquenessScope string `json:"uniqueness_scope,omitempty"` // "warehouse" | "tenant"
}

func (c *PosConnection) Settings() ConnectionSettings {
	var s ConnectionSettings
	if len(c.SettingsJSON) > 0 {
		_ = json.Unmarshal(c.SettingsJSON, &s)
	}
	return s
}

// RecipeDeductionEnabled resolves the connection setting, falling back to the
// deployment default.
func (c *PosConnection) RecipeDeductionEnabled() bool {
	s := c.Settings()
	if s.RecipeDeduction != nil {
		return *s.RecipeDeduction
	}
	return config.RecipeDeductionDefault()
}

// UniquenessScope resolves the idempotency-key scope for this connection.
func (c *PosConnection) UniquenessScope() string {
	s := c.Settings()
	if v := strings.ToLower(strings.TrimSpace(s.UniquenessScope)); v == "tenant" || v == "warehouse" {
		return v
	}
	return config.SaleUniquenessScope()
}

// WarehouseMapping resolves a POS warehouse code to an internal branch.
// There is no auto-create for warehouses: an unmapped code with no connection
// default branch is a hard error (branch is required for tenant isolation of stock).
type WarehouseMapping struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"uniqueIndex:idx_wh_mapping,priority:1;not null" json:"business_id"`
	ConnectionId  uint      `gorm:"uniqueIndex:idx_wh_mapping,priority:2;not null" json:"connection_id"`
	WarehouseCode string    `gorm:"uniqueIndex:idx_wh_mapping,priority:3;size:100;not null" json:"warehouse_code"`
	BranchId      int       `gorm:"index;not null" json:"branch_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetConnectionByBusiness(ctx context.Context, businessId string) (*PosConnection, error) {
	db := config.GetDB()
	var conn PosConnection
	err := db.WithContext(ctx).
		Where("business_id = ? AND provider = ?", businessId, IntegrationProviderSR).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &conn, nil
}

type NewWarehouseMapping struct {
	WarehouseCode string `json:"warehouse_code" binding:"required"`
	BranchId      int    `json:"branch_id" binding:"required"`
}

// UpsertWarehouseMapping creates or repoints one warehouse-code mapping.
func UpsertWarehouseMapping(ctx context.Context, connectionId uint, input *NewWarehouseMapping) (*WarehouseMapping, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Branch](ctx, businessId, input.BranchId); err != nil {
		return nil, errors.New("branch not found")
	}

	db := config.GetDB()
	var mapping WarehouseMapping
	err := db.WithContext(ctx).
		Where("business_id = ? AND connection_id = ? AND warehouse_code = ?", businessId, connectionId, input.WarehouseCode).
		Take(&mapping).Error
	if err == nil {
		if err := db.WithContext(ctx).Model(&mapping).Update("branch_id", input.BranchId).Error; err != nil {
			return nil, err
		}
		return &mapping, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	mapping = WarehouseMapping{
		BusinessId:    businessId,
		ConnectionId:  connectionId,
		WarehouseCode: input.WarehouseCode,
		BranchId:      input.BranchId,
	}
	if err := db.WithContext(ctx).Create(&mapping).Error; err != nil {
		return nil, err
	}
	return &mapping, nil
}
