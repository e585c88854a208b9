package models

import (
	"log"

	"bitbucket.org/mmdatafocus/resto_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Branch{},
		&Ingredient{}, &Product{},
		&Recipe{}, &RecipeIngredient{},
		&PosConnection{}, &WarehouseMapping{}, &ProductMapping{}, &PaymentMode{},
		&PosSale{}, &PosSaleItem{}, &PosSalePayment{},
		&InventoryMovement{}, &IngredientStockSummary{},
		&LowStockAlert{},
		&PosProcessingLog{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
