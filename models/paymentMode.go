package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
)

type PaymentMode struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPaymentMode struct {
	Name string `json:"name" binding:"required"`
}

func CreatePaymentMode(ctx context.Context, input *NewPaymentMode) (*PaymentMode, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateUnique[PaymentMode](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	mode := PaymentMode{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&mode).Error; err != nil {
		return nil, err
	}
	return &mode, nil
}
