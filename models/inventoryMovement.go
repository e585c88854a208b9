package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryMovement is the append-only stock ledger. Rows are never updated or
// deleted after creation; reversal appends a compensating row. Current stock is
// always SUM(qty) per (branch, ingredient) — the ledger is the source of truth,
// IngredientStockSummary is only a projection refreshed from that sum.
type InventoryMovement struct {
	ID            string                `gorm:"size:36;primary_key" json:"id"` // uuid
	BusinessId    string                `gorm:"index:idx_inv_move_biz_ing_date,priority:1;not null" json:"business_id"`
	BranchId      int                   `gorm:"index;not null" json:"branch_id"`
	IngredientId  int                   `gorm:"index:idx_inv_move_biz_ing_date,priority:2;not null" json:"ingredient_id"`
	Qty           decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"qty"` // signed: negative = deduction
	Unit          string                `gorm:"size:20" json:"unit"`
	ReferenceType MovementReferenceType `gorm:"type:enum('sale','cancellation','manual');not null;index:idx_inv_move_ref,priority:1" json:"reference_type"`
	ReferenceId   int                   `gorm:"index:idx_inv_move_ref,priority:2;not null" json:"reference_id"`
	ReferenceLineId int                 `gorm:"index" json:"reference_line_id"`
	UnitCost      decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	TotalCost     decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	PreviousStock decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"previous_stock"`
	NewStock      decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"new_stock"`

	IsReversal           bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesMovementId   *string    `gorm:"size:36;index" json:"reverses_movement_id"`
	ReversedByMovementId *string    `gorm:"size:36;index" json:"reversed_by_movement_id"`
	ReversalReason       *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt           *time.Time `json:"reversed_at"`

	EffectiveDate time.Time `gorm:"index:idx_inv_move_biz_ing_date,priority:3;not null" json:"effective_date"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IngredientStockSummary is the denormalized per-(branch, ingredient) stock
// projection. It is refreshed from the ledger sum inside the same transaction
// as every movement insert, never maintained as an independent counter, and can
// be rebuilt at any time (cmd/inventory-rebuild).
type IngredientStockSummary struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"uniqueIndex:idx_stock_summary,priority:1;not null" json:"business_id"`
	BranchId     int             `gorm:"uniqueIndex:idx_stock_summary,priority:2;not null" json:"branch_id"`
	IngredientId int             `gorm:"uniqueIndex:idx_stock_summary,priority:3;not null" json:"ingredient_id"`
	CurrentQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_qty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerStockSum recomputes current stock for one ingredient from the ledger.
func LedgerStockSum(tx *gorm.DB, businessId string, branchId int, ingredientId int) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := tx.Model(&InventoryMovement{}).
		Select("SUM(qty)").
		Where("business_id = ? AND branch_id = ? AND ingredient_id = ?", businessId, branchId, ingredientId).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// RefreshStockSummary upserts the projection row from the ledger sum and
// returns the recomputed stock.
func RefreshStockSummary(tx *gorm.DB, businessId string, branchId int, ingredientId int) (decimal.Decimal, error) {
	current, err := LedgerStockSum(tx, businessId, branchId, ingredientId)
	if err != nil {
		return decimal.Zero, err
	}

	var summary IngredientStockSummary
	err = tx.Where("business_id = ? AND branch_id = ? AND ingredient_id = ?", businessId, branchId, ingredientId).
		Take(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		summary = IngredientStockSummary{
			BusinessId:   businessId,
			BranchId:     branchId,
			IngredientId: ingredientId,
			CurrentQty:   current,
		}
		return current, tx.Create(&summary).Error
	}
	if err != nil {
		return decimal.Zero, err
	}
	return current, tx.Model(&summary).Update("current_qty", current).Error
}
