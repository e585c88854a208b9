package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"github.com/shopspring/decimal"
)

// Product is an internal catalog/menu item. POS product codes resolve to a
// Product through ProductMapping; the Product in turn may carry a Recipe.
type Product struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	Name       string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Sku        string          `gorm:"size:100" json:"sku"`
	SalesPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name       string          `json:"name" binding:"required"`
	Sku        string          `json:"sku"`
	SalesPrice decimal.Decimal `json:"sales_price"`
}

func (input *NewProduct) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Product](ctx, businessId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Product](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	product := Product{
		BusinessId: businessId,
		Name:       input.Name,
		Sku:        input.Sku,
		SalesPrice: input.SalesPrice,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(product).Updates(map[string]interface{}{
		"Name":       input.Name,
		"Sku":        input.Sku,
		"SalesPrice": input.SalesPrice,
	}).Error
	if err != nil {
		return nil, err
	}
	return product, nil
}
