package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
)

type Branch struct {
	ID        int       `gorm:"primary_key" json:"id"`
	BusinessId string   `gorm:"index;not null" json:"business_id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBranch struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewBranch) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Branch](ctx, businessId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Branch](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateBranch(ctx context.Context, input *NewBranch) (*Branch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	branch := Branch{
		BusinessId: businessId,
		Name:       input.Name,
		Phone:      input.Phone,
		Address:    input.Address,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func UpdateBranch(ctx context.Context, id int, input *NewBranch) (*Branch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	branch, err := utils.FetchModel[Branch](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(branch).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Phone":   input.Phone,
		"Address": input.Address,
	}).Error
	if err != nil {
		return nil, err
	}
	return branch, nil
}
