package workflow

import "errors"

var (
	// ErrCompanyMismatch rejects a whole payload whose source company id does not
	// match the connection. Treated as a security event, not a per-sale failure.
	ErrCompanyMismatch = errors.New("source company id does not match connection")

	// ErrUnmappedWarehouse means the sale's warehouse code has no branch mapping
	// and the connection has no default branch. Hard error: stock must never be
	// deducted against a silently guessed branch.
	ErrUnmappedWarehouse = errors.New("warehouse code is not mapped to a branch")

	// ErrNoRecipe is the expected miss for products without a recipe (beverages,
	// retail items). Recorded on the line item, never fails the sale.
	ErrNoRecipe = errors.New("product has no active recipe")

	ErrSaleNotFound = errors.New("sale not found")
)
