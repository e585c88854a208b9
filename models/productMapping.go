package models

import "time"

// ProductMapping resolves a POS product code to an internal catalog Product.
// Rows are created automatically (unmapped, ProductId nil) the first time an
// unknown external id is seen; a human later fills ProductId in. Rows are never
// hard-deleted, only deactivated, so historical sales stay interpretable.
type ProductMapping struct {
	ID           uint              `gorm:"primary_key" json:"id"`
	BusinessId   string            `gorm:"uniqueIndex:idx_product_mapping,priority:1;not null" json:"business_id"`
	ConnectionId uint              `gorm:"uniqueIndex:idx_product_mapping,priority:2;not null" json:"connection_id"`
	ExternalId   string            `gorm:"uniqueIndex:idx_product_mapping,priority:3;size:128;not null" json:"external_id"`
	ExternalName string            `gorm:"size:255" json:"external_name"`
	ProductId    *int              `gorm:"index" json:"product_id"`
	Confidence   MappingConfidence `gorm:"size:20;not null;default:auto" json:"confidence"`
	IsActive     *bool             `gorm:"not null;default:true" json:"is_active"`
	LastSeenAt   *time.Time        `json:"last_seen_at"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
