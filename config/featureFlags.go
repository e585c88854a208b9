package config

import (
	"os"
	"strings"
)

// SaleUniquenessScope controls how the POS sale idempotency key is scoped.
//
// The SR documentation does not pin down whether an order number is unique per
// warehouse or per tenant, so this is a deployment decision, not a hardcoded one.
//
// Set via env:
// - SALE_UNIQUENESS_SCOPE=warehouse (default) -> (business, connection, warehouse_code, external_id)
// - SALE_UNIQUENESS_SCOPE=tenant              -> (business, connection, external_id)
func SaleUniquenessScope() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SALE_UNIQUENESS_SCOPE")))
	if v == "tenant" {
		return "tenant"
	}
	return "warehouse"
}

// RecipeDeductionDefault is the fallback when a connection has no explicit
// recipe-deduction setting.
//
// Set via env:
// - RECIPE_DEDUCTION_DEFAULT=false to disable deduction for unconfigured connections
func RecipeDeductionDefault() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("RECIPE_DEDUCTION_DEFAULT")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AsyncIngestEnabled routes webhook payloads through Pub/Sub instead of
// processing them inline in the request handler.
//
// Set via env:
// - SR_ASYNC_INGEST=true
func AsyncIngestEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SR_ASYNC_INGEST")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
