package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recipe maps one catalog Product to its raw-ingredient composition.
// Deduction always reads the currently active recipe (no historical pinning);
// UpdatedAt is the version marker.
type Recipe struct {
	ID          int                `gorm:"primary_key" json:"id"`
	BusinessId  string             `gorm:"uniqueIndex:idx_recipe_biz_product,priority:1;not null" json:"business_id"`
	ProductId   int                `gorm:"uniqueIndex:idx_recipe_biz_product,priority:2;not null" json:"product_id"`
	YieldQty    decimal.Decimal    `gorm:"type:decimal(20,4);default:1" json:"yield_qty"`
	YieldUnit   string             `gorm:"size:20" json:"yield_unit"`
	IsActive    *bool              `gorm:"not null;default:true" json:"is_active"`
	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeId" json:"ingredients"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type RecipeIngredient struct {
	ID              int             `gorm:"primary_key" json:"id"`
	RecipeId        int             `gorm:"index;not null" json:"recipe_id"`
	IngredientId    int             `gorm:"index;not null" json:"ingredient_id"`
	QtyPerYield     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_per_yield"`
	Unit            string          `gorm:"size:20;not null" json:"unit"`
	WastePercentage decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"waste_percentage"`
	IsOptional      *bool           `gorm:"not null;default:false" json:"is_optional"`
	SortOrder       int             `gorm:"default:0" json:"sort_order"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecipe struct {
	ProductId   int                   `json:"product_id" binding:"required"`
	YieldQty    decimal.Decimal       `json:"yield_qty"`
	YieldUnit   string                `json:"yield_unit"`
	Ingredients []NewRecipeIngredient `json:"ingredients" binding:"required,dive"`
}

type NewRecipeIngredient struct {
	IngredientId    int             `json:"ingredient_id" binding:"required"`
	QtyPerYield     decimal.Decimal `json:"qty_per_yield"`
	Unit            string          `json:"unit"`
	WastePercentage decimal.Decimal `json:"waste_percentage"`
	IsOptional      *bool           `json:"is_optional"`
}

var oneHundred = decimal.NewFromInt(100)

func (input *NewRecipe) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Recipe](ctx, businessId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateResourceId[Product](ctx, businessId, input.ProductId); err != nil {
		return errors.New("product not found")
	}
	if len(input.Ingredients) == 0 {
		return errors.New("recipe needs at least one ingredient")
	}
	if input.YieldQty.IsNegative() {
		return errors.New("yield qty cannot be negative")
	}

	ingredientIds := make([]int, 0, len(input.Ingredients))
	for _, ing := range input.Ingredients {
		if ing.QtyPerYield.LessThanOrEqual(decimal.Zero) {
			return errors.New("ingredient qty per yield must be positive")
		}
		if ing.WastePercentage.IsNegative() || ing.WastePercentage.GreaterThanOrEqual(oneHundred) {
			return errors.New("waste percentage must be in [0, 100)")
		}
		ingredientIds = append(ingredientIds, ing.IngredientId)
	}
	if err := utils.ValidateResourcesId[Ingredient](ctx, businessId, ingredientIds); err != nil {
		return errors.New("ingredient not found")
	}
	return nil
}

func CreateRecipe(ctx context.Context, input *NewRecipe) (*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	yieldQty := input.YieldQty
	if yieldQty.IsZero() {
		yieldQty = decimal.NewFromInt(1)
	}

	recipe := Recipe{
		BusinessId: businessId,
		ProductId:  input.ProductId,
		YieldQty:   yieldQty,
		YieldUnit:  input.YieldUnit,
		IsActive:   utils.NewTrue(),
	}
	for i, ing := range input.Ingredients {
		isOptional := utils.NewFalse()
		if ing.IsOptional != nil {
			isOptional = ing.IsOptional
		}
		recipe.Ingredients = append(recipe.Ingredients, RecipeIngredient{
			IngredientId:    ing.IngredientId,
			QtyPerYield:     ing.QtyPerYield,
			Unit:            ing.Unit,
			WastePercentage: ing.WastePercentage,
			IsOptional:      isOptional,
			SortOrder:       i,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&recipe).Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

// UpdateRecipe replaces the ingredient list wholesale. Past deductions are not
// affected: movements are append-only and carry their own quantity/cost snapshots.
func UpdateRecipe(ctx context.Context, id int, input *NewRecipe) (*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	recipe, err := utils.FetchModel[Recipe](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	yieldQty := input.YieldQty
	if yieldQty.IsZero() {
		yieldQty = decimal.NewFromInt(1)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&RecipeIngredient{}).Error; err != nil {
			return err
		}
		if err := tx.Model(recipe).Updates(map[string]interface{}{
			"YieldQty":  yieldQty,
			"YieldUnit": input.YieldUnit,
		}).Error; err != nil {
			return err
		}
		for i, ing := range input.Ingredients {
			isOptional := utils.NewFalse()
			if ing.IsOptional != nil {
				isOptional = ing.IsOptional
			}
			row := RecipeIngredient{
				RecipeId:        recipe.ID,
				IngredientId:    ing.IngredientId,
				QtyPerYield:     ing.QtyPerYield,
				Unit:            ing.Unit,
				WastePercentage: ing.WastePercentage,
				IsOptional:      isOptional,
				SortOrder:       i,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Recipe](ctx, businessId, id, "Ingredients")
}

// GetActiveRecipeForProduct returns the product's active recipe with ingredients
// ordered as configured, or RecordNotFound when the product has no recipe.
func GetActiveRecipeForProduct(tx *gorm.DB, businessId string, productId int) (*Recipe, error) {
	var recipe Recipe
	err := tx.
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
			return db.Order("recipe_ingredients.sort_order, recipe_ingredients.id")
		}).
		Where("business_id = ? AND product_id = ? AND is_active = ?", businessId, productId, true).
		First(&recipe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &recipe, nil
}
