package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	LogErrorCodeValidationFailed     = "validation_failed"
	LogErrorCodeCompanyMismatch      = "company_mismatch"
	LogErrorCodeUnmappedWarehouse    = "unmapped_warehouse"
	LogErrorCodeUnmappedProduct      = "unmapped_product"
	LogErrorCodeUnmappedPaymentMode  = "unmapped_payment_method"
	LogErrorCodeNoRecipe             = "no_recipe"
	LogErrorCodeTotalsMismatch       = "totals_mismatch"
	LogErrorCodeStorageFailed        = "storage_failed"
	LogErrorCodeCancellationNotFound = "cancellation_not_found"
)

// PosProcessingLog is the structured audit trail for ingestion and cancellation.
// One row per processed sale (or per batch, for security errors); nothing is
// ever swallowed silently.
type PosProcessingLog struct {
	ID           uint              `gorm:"primary_key" json:"id"`
	BusinessId   string            `gorm:"index;not null" json:"business_id"`
	ConnectionId uint              `gorm:"index" json:"connection_id"`
	SaleId       *int              `gorm:"index" json:"sale_id"`
	ExternalId   string            `gorm:"size:128;index" json:"external_id"`
	EntityType   string            `gorm:"size:50" json:"entity_type"` // sale | batch | cancellation
	Outcome      SaleOutcomeStatus `gorm:"size:20" json:"outcome"`
	ErrorCode    string            `gorm:"size:64" json:"error_code"`
	Message      string            `gorm:"type:text" json:"message"`
	PayloadJSON  []byte            `gorm:"type:json" json:"payload"`
	Retryable    bool              `gorm:"default:false" json:"retryable"`

	ItemsProcessed int `gorm:"default:0" json:"items_processed"`
	ItemsFailed    int `gorm:"default:0" json:"items_failed"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateProcessingLog(ctx context.Context, db *gorm.DB, entry *PosProcessingLog) error {
	return db.WithContext(ctx).Create(entry).Error
}
