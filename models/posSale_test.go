package models

import "testing"

func TestBuildSaleUniquenessKey(t *testing.T) {
	if got := BuildSaleUniquenessKey("warehouse", "WH-1", "51795"); got != "WH-1|51795" {
		t.Errorf("warehouse scope = %q", got)
	}
	if got := BuildSaleUniquenessKey("tenant", "WH-1", "51795"); got != "51795" {
		t.Errorf("tenant scope = %q", got)
	}
	// Unknown scope falls back to the stricter warehouse key.
	if got := BuildSaleUniquenessKey("", "WH-1", "51795"); got != "WH-1|51795" {
		t.Errorf("default scope = %q", got)
	}

	// Same order number in two warehouses collides only under tenant scope.
	a := BuildSaleUniquenessKey("warehouse", "WH-1", "100")
	b := BuildSaleUniquenessKey("warehouse", "WH-2", "100")
	if a == b {
		t.Error("warehouse scope must distinguish warehouses")
	}
}
