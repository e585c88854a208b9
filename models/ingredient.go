package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"github.com/shopspring/decimal"
)

// Ingredient is a raw-stock item consumed by recipe explosion.
// UnitCost is the current purchasing price; deductions snapshot it at apply time.
type Ingredient struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	Name         string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Sku          string          `gorm:"size:100" json:"sku"`
	Unit         string          `gorm:"size:20;not null" json:"unit" binding:"required"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	ReorderPoint decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	MinimumStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"minimum_stock"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIngredient struct {
	Name         string          `json:"name" binding:"required"`
	Sku          string          `json:"sku"`
	Unit         string          `json:"unit" binding:"required"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
}

func (input *NewIngredient) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Ingredient](ctx, businessId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Ingredient](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if strings.TrimSpace(input.Unit) == "" {
		return errors.New("unit is required")
	}
	if input.UnitCost.IsNegative() {
		return errors.New("unit cost cannot be negative")
	}
	if input.ReorderPoint.IsNegative() || input.MinimumStock.IsNegative() {
		return errors.New("stock thresholds cannot be negative")
	}
	if input.MinimumStock.GreaterThan(input.ReorderPoint) && !input.ReorderPoint.IsZero() {
		return errors.New("minimum stock cannot exceed reorder point")
	}
	return nil
}

func CreateIngredient(ctx context.Context, input *NewIngredient) (*Ingredient, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	ingredient := Ingredient{
		BusinessId:   businessId,
		Name:         input.Name,
		Sku:          input.Sku,
		Unit:         input.Unit,
		UnitCost:     input.UnitCost,
		ReorderPoint: input.ReorderPoint,
		MinimumStock: input.MinimumStock,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&ingredient).Error; err != nil {
		return nil, err
	}
	return &ingredient, nil
}

func UpdateIngredient(ctx context.Context, id int, input *NewIngredient) (*Ingredient, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	ingredient, err := utils.FetchModel[Ingredient](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(ingredient).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Sku":          input.Sku,
		"Unit":         input.Unit,
		"UnitCost":     input.UnitCost,
		"ReorderPoint": input.ReorderPoint,
		"MinimumStock": input.MinimumStock,
	}).Error
	if err != nil {
		return nil, err
	}
	return ingredient, nil
}
