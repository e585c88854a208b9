package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LowStockAlert tracks threshold breaches per (branch, ingredient).
// At most one active alert may exist per pair: repeated deductions update the
// existing active row instead of inserting duplicates. The invariant is held
// at the storage level by the unique index on (business, branch, ingredient,
// active_key): ActiveKey is "active" while the alert is open and NULL once
// resolved, and NULLs never collide, so history rows accumulate freely while
// a second concurrent insert of an open alert hits a duplicate-key error.
// Resolution only happens through an explicit restock acknowledgment, never
// as a side effect of sales.
type LowStockAlert struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;uniqueIndex:uniq_alert_active,priority:1;not null" json:"business_id"`
	BranchId     int             `gorm:"index:idx_alert_branch_ing,priority:1;uniqueIndex:uniq_alert_active,priority:2;not null" json:"branch_id"`
	IngredientId int             `gorm:"index:idx_alert_branch_ing,priority:2;uniqueIndex:uniq_alert_active,priority:3;not null" json:"ingredient_id"`
	ActiveKey    *string         `gorm:"size:10;uniqueIndex:uniq_alert_active,priority:4" json:"-"`
	AlertType    AlertType       `gorm:"type:enum('out_of_stock','low_stock','approaching');not null" json:"alert_type"`
	Severity     AlertSeverity   `gorm:"type:enum('critical','warning');not null" json:"severity"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	ReorderPoint decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	SuggestedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"suggested_qty"`
	Status       AlertStatus     `gorm:"type:enum('active','acknowledged','resolved');default:active;index" json:"status"`

	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
