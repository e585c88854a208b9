package workflow

import (
	"testing"
	"time"
)

func validSale() SaleInput {
	return SaleInput{
		ExternalId:    "51795",
		WarehouseCode: "WH-1",
		SaleDate:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Total:         d("120.50"),
		Items: []SaleItemInput{
			{ProductExternalId: "01005", Qty: d("1")},
		},
		Payments: []SalePaymentInput{
			{MethodName: "cash", Amount: d("120.50")},
		},
	}
}

func TestSaleInputValidate(t *testing.T) {
	sale := validSale()
	if err := sale.validate(true); err != nil {
		t.Fatalf("valid sale rejected: %v", err)
	}

	missing := validSale()
	missing.ExternalId = "  "
	if err := missing.validate(true); err == nil {
		t.Fatal("missing external id accepted")
	}

	noDate := validSale()
	noDate.SaleDate = time.Time{}
	if err := noDate.validate(true); err == nil {
		t.Fatal("missing sale date accepted")
	}

	negative := validSale()
	negative.Total = d("-1")
	if err := negative.validate(true); err == nil {
		t.Fatal("negative total accepted")
	}

	badItem := validSale()
	badItem.Items[0].ProductExternalId = ""
	if err := badItem.validate(true); err == nil {
		t.Fatal("item without product code accepted")
	}
}

func TestSaleInputValidateWarehouseRequirement(t *testing.T) {
	sale := validSale()
	sale.WarehouseCode = ""

	// Without a connection default branch the warehouse code is mandatory.
	if err := sale.validate(true); err == nil {
		t.Fatal("missing warehouse code accepted without default branch")
	}
	// With a default branch the sale may omit it.
	if err := sale.validate(false); err != nil {
		t.Fatalf("default-branch fallback rejected: %v", err)
	}
}
