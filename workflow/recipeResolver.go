package workflow

import (
	"errors"

	"bitbucket.org/mmdatafocus/resto_backend/models"
	"bitbucket.org/mmdatafocus/resto_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecipeRequirement is one ingredient's share of a sold quantity after recipe
// explosion: the amount to deduct and its cost at today's purchase price.
type RecipeRequirement struct {
	Ingredient models.Ingredient
	Qty        decimal.Decimal
	Unit       string
	UnitCost   decimal.Decimal
	Cost       decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ScaleIngredientQty computes the deduction amount for one recipe line:
// qtyPerYield * (qtySold / yieldQty) * (1 + waste/100). A zero yield is treated
// as 1 (recipe yields a single portion).
func ScaleIngredientQty(qtyPerYield decimal.Decimal, qtySold decimal.Decimal, yieldQty decimal.Decimal, wastePercentage decimal.Decimal) decimal.Decimal {
	if yieldQty.IsZero() {
		yieldQty = decimal.NewFromInt(1)
	}
	scale := qtySold.Div(yieldQty)
	wasteFactor := decimal.NewFromInt(1).Add(wastePercentage.Div(hundred))
	return qtyPerYield.Mul(scale).Mul(wasteFactor)
}

// ExplodeRecipe resolves the product's active recipe and scales every line to
// the sold quantity. Unit costs are read from the ingredient at this moment,
// not from the sale time, so late-arriving sales price at current cost.
// Returns ErrNoRecipe when the product has no active recipe.
func ExplodeRecipe(tx *gorm.DB, businessId string, productId int, qtySold decimal.Decimal) ([]RecipeRequirement, error) {
	recipe, err := models.GetActiveRecipeForProduct(tx, businessId, productId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, ErrNoRecipe
		}
		return nil, err
	}
	if len(recipe.Ingredients) == 0 {
		return nil, ErrNoRecipe
	}

	ingredientIds := make([]int, 0, len(recipe.Ingredients))
	for _, line := range recipe.Ingredients {
		ingredientIds = append(ingredientIds, line.IngredientId)
	}

	var ingredients []models.Ingredient
	err = tx.
		Where("business_id = ? AND id IN ?", businessId, utils.UniqueSlice(ingredientIds)).
		Find(&ingredients).Error
	if err != nil {
		return nil, err
	}
	byId := make(map[int]models.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byId[ing.ID] = ing
	}

	requirements := make([]RecipeRequirement, 0, len(recipe.Ingredients))
	for _, line := range recipe.Ingredients {
		ing, ok := byId[line.IngredientId]
		if !ok {
			return nil, errors.New("recipe references missing ingredient")
		}
		qty := ScaleIngredientQty(line.QtyPerYield, qtySold, recipe.YieldQty, line.WastePercentage)
		unit := line.Unit
		if unit == "" {
			unit = ing.Unit
		}
		requirements = append(requirements, RecipeRequirement{
			Ingredient: ing,
			Qty:        qty,
			Unit:       unit,
			UnitCost:   ing.UnitCost,
			Cost:       qty.Mul(ing.UnitCost),
		})
	}
	return requirements, nil
}
