package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	"gorm.io/gorm"
)

// Recomputes the stock summary projection from the movement ledger. The ledger
// is the source of truth; this proves (and repairs) the projection.
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	branchID := flag.Int("branch-id", 0, "Optional: limit to one branch")
	ingredientID := flag.Int("ingredient-id", 0, "Optional: limit to one ingredient")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	type scope struct {
		BranchId     int
		IngredientId int
	}
	var scopes []scope

	query := db.Model(&models.InventoryMovement{}).
		Select("branch_id, ingredient_id").
		Where("business_id = ?", *businessID).
		Group("branch_id, ingredient_id")
	if *branchID > 0 {
		query = query.Where("branch_id = ?", *branchID)
	}
	if *ingredientID > 0 {
		query = query.Where("ingredient_id = ?", *ingredientID)
	}
	if err := query.Scan(&scopes).Error; err != nil {
		fmt.Fprintf(os.Stderr, "discover scopes: %v\n", err)
		os.Exit(1)
	}

	drifted := 0
	for _, s := range scopes {
		err := db.Transaction(func(tx *gorm.DB) error {
			var before models.IngredientStockSummary
			hadSummary := tx.
				Where("business_id = ? AND branch_id = ? AND ingredient_id = ?", *businessID, s.BranchId, s.IngredientId).
				Take(&before).Error == nil

			after, err := models.RefreshStockSummary(tx, *businessID, s.BranchId, s.IngredientId)
			if err != nil {
				return err
			}

			if !hadSummary || !before.CurrentQty.Equal(after) {
				drifted++
				fmt.Printf("rebuilt branch=%d ingredient=%d qty=%s (was=%s)\n",
					s.BranchId, s.IngredientId, after.String(), before.CurrentQty.String())
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild branch=%d ingredient=%d failed: %v\n", s.BranchId, s.IngredientId, err)
			os.Exit(1)
		}
	}

	fmt.Printf("done: %d scopes checked, %d corrected\n", len(scopes), drifted)
}
