package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PosSale is one finalized POS transaction, exactly once per idempotency key.
//
// UniquenessKey is the storage-enforced idempotency key: depending on the
// connection's uniqueness scope it is either "<external_id>" (tenant scope) or
// "<warehouse_code>|<external_id>" (warehouse scope, the stricter default).
// The unique index makes concurrent duplicate delivery collapse to one row.
type PosSale struct {
	ID            int        `gorm:"primary_key" json:"id"`
	BusinessId    string     `gorm:"uniqueIndex:idx_pos_sale_key,priority:1;not null" json:"business_id"`
	ConnectionId  uint       `gorm:"uniqueIndex:idx_pos_sale_key,priority:2;not null" json:"connection_id"`
	UniquenessKey string     `gorm:"uniqueIndex:idx_pos_sale_key,priority:3;size:255;not null" json:"uniqueness_key"`
	ExternalId    string     `gorm:"index;size:128;not null" json:"external_id"`
	BranchId      int        `gorm:"index;not null" json:"branch_id"`
	WarehouseCode string     `gorm:"size:100" json:"warehouse_code"`
	StationCode   string     `gorm:"size:50" json:"station_code"`
	AreaCode      string     `gorm:"size:50" json:"area_code"`
	TableCode     string     `gorm:"size:50" json:"table_code"`
	UserCode      string     `gorm:"size:50" json:"user_code"`
	CustomerCode  string     `gorm:"size:50" json:"customer_code"`
	SaleDate      time.Time  `gorm:"index;not null" json:"sale_date"`

	Total        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Tip          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tip"`
	RecipeCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"recipe_cost"`
	ProfitMargin decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"profit_margin"`

	CurrentStatus      SaleStatus        `gorm:"type:enum('pending','completed','cancelled','error');default:pending;index" json:"current_status"`
	CancellationType   *CancellationType `gorm:"size:20" json:"cancellation_type"`
	CancelledAt        *time.Time        `json:"cancelled_at"`
	CancellationReason *string           `gorm:"type:text" json:"cancellation_reason"`

	RawPayload   json.RawMessage `gorm:"type:json" json:"raw_payload"`
	RetryCount   int             `gorm:"default:0" json:"retry_count"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message"`

	Items    []PosSaleItem    `gorm:"foreignKey:SaleId" json:"items"`
	Payments []PosSalePayment `gorm:"foreignKey:SaleId" json:"payments"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TaxLine is one entry of a line item's tax breakdown, stored in TaxesJSON.
type TaxLine struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type PosSaleItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"index;not null" json:"business_id"`
	SaleId            int             `gorm:"index;not null" json:"sale_id"`
	ProductExternalId string          `gorm:"size:128;not null" json:"product_external_id"`
	Description       string          `gorm:"size:255" json:"description"`
	MovementType      MovementType    `gorm:"size:30;default:sale" json:"movement_type"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Discount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	TaxesJSON         []byte          `gorm:"type:json" json:"taxes"`
	TaxTotal          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_total"`
	LineTotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`

	RecipeDeducted *bool           `gorm:"not null;default:false" json:"recipe_deducted"`
	RecipeCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"recipe_cost"`
	DeductionError *string         `gorm:"type:text" json:"deduction_error"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (item *PosSaleItem) TaxLines() []TaxLine {
	if len(item.TaxesJSON) == 0 {
		return nil
	}
	var lines []TaxLine
	if err := json.Unmarshal(item.TaxesJSON, &lines); err != nil {
		return nil
	}
	return lines
}

type PosSalePayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	SaleId        int             `gorm:"index;not null" json:"sale_id"`
	MethodName    string          `gorm:"size:100" json:"method_name"`
	PaymentModeId *int            `gorm:"index" json:"payment_mode_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Tip           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tip"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BuildSaleUniquenessKey computes the storage idempotency key for a sale under
// the given scope ("warehouse" or "tenant").
func BuildSaleUniquenessKey(scope string, warehouseCode string, externalId string) string {
	if scope == "tenant" {
		return externalId
	}
	return warehouseCode + "|" + externalId
}
