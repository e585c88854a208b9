package srsync

import (
	"encoding/json"
	"testing"
	"time"
)

const sampleWebhookBody = `{
	"company_id": "COMP-7",
	"sales": [
		{
			"id": "51795",
			"warehouse": "WH-1",
			"station": "CAJA1",
			"table": "12",
			"date": "2025-06-01T12:30:00Z",
			"total": "120.50",
			"tip": 10,
			"items": [
				{
					"product": "01005",
					"description": "Burger",
					"movement_type": "V",
					"qty": "1",
					"price": "120.50",
					"subtotal": "103.88",
					"discount": "0",
					"taxes": [
						{"name": "IVA", "rate": "16", "amount": "16.62"}
					]
				}
			],
			"payments": [
				{"method": "cash", "amount": "80.50", "tip": "10"},
				{"method": "card", "amount": "40", "tip": "0"}
			],
			"extra_pos_field": "kept in raw"
		}
	]
}`

func TestDecodeSaleBatch(t *testing.T) {
	var req SaleWebhookRequest
	if err := json.Unmarshal([]byte(sampleWebhookBody), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	batch := DecodeSaleBatch(&req, "corr-1")
	if batch.SourceCompanyId != "COMP-7" {
		t.Fatalf("company = %q", batch.SourceCompanyId)
	}
	if len(batch.Sales) != 1 {
		t.Fatalf("sales = %d", len(batch.Sales))
	}

	sale := batch.Sales[0]
	if sale.ExternalId != "51795" || sale.WarehouseCode != "WH-1" {
		t.Fatalf("identity = %q/%q", sale.ExternalId, sale.WarehouseCode)
	}
	want := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	if !sale.SaleDate.Equal(want) {
		t.Fatalf("date = %s", sale.SaleDate)
	}
	if sale.Total.String() != "120.5" || sale.Tip.String() != "10" {
		t.Fatalf("money = %s/%s", sale.Total, sale.Tip)
	}

	if len(sale.Items) != 1 {
		t.Fatalf("items = %d", len(sale.Items))
	}
	item := sale.Items[0]
	if item.ProductExternalId != "01005" || item.MovementTypeCode != "V" {
		t.Fatalf("item identity = %q/%q", item.ProductExternalId, item.MovementTypeCode)
	}
	if item.TaxTotal.String() != "16.62" {
		t.Fatalf("tax total = %s", item.TaxTotal)
	}
	// line total = subtotal - discount + taxes
	if item.LineTotal.String() != "120.5" {
		t.Fatalf("line total = %s", item.LineTotal)
	}

	if len(sale.Payments) != 2 {
		t.Fatalf("payments = %d", len(sale.Payments))
	}
	if sale.Payments[0].MethodName != "cash" || sale.Payments[0].Amount.String() != "80.5" {
		t.Fatalf("payment[0] = %q %s", sale.Payments[0].MethodName, sale.Payments[0].Amount)
	}

	// The raw blob keeps POS-specific fields we do not model.
	var raw map[string]interface{}
	if err := json.Unmarshal(sale.Raw, &raw); err != nil {
		t.Fatalf("raw blob: %v", err)
	}
	if raw["extra_pos_field"] != "kept in raw" {
		t.Fatal("extra field lost from raw payload")
	}
}

func TestDecodeSaleBatchUndecodableElement(t *testing.T) {
	req := SaleWebhookRequest{
		CompanyId: "COMP-7",
		Sales: []json.RawMessage{
			json.RawMessage(`"not an object"`),
			json.RawMessage(`{"id":"2","warehouse":"WH-1","date":"2025-06-01","total":"1"}`),
		},
	}
	batch := DecodeSaleBatch(&req, "corr-2")
	if len(batch.Sales) != 2 {
		t.Fatalf("sales = %d, outcome list must line up with input", len(batch.Sales))
	}
	// The broken element keeps its raw payload but fails validation later.
	if batch.Sales[0].ExternalId != "" {
		t.Fatalf("placeholder got id %q", batch.Sales[0].ExternalId)
	}
	if batch.Sales[1].ExternalId != "2" {
		t.Fatalf("sibling = %q", batch.Sales[1].ExternalId)
	}
}

func TestParseSaleDateFormats(t *testing.T) {
	good := []string{
		"2025-06-01T12:30:00Z",
		"2025-06-01T12:30:00",
		"2025-06-01 12:30:00",
		"2025-06-01",
	}
	for _, v := range good {
		if _, err := parseSaleDate(v); err != nil {
			t.Errorf("parseSaleDate(%q): %v", v, err)
		}
	}
	if _, err := parseSaleDate("01/06/2025"); err == nil {
		t.Error("ambiguous format accepted")
	}
	if _, err := parseSaleDate(""); err == nil {
		t.Error("empty date accepted")
	}
}

func TestCursorStateRoundTrip(t *testing.T) {
	state := CursorState{Cursor: "abc", UpdatedSince: "2025-06-01T00:00:00Z"}
	decoded := DecodeCursorState(EncodeCursorState(state))
	if decoded != state {
		t.Fatalf("round trip = %+v", decoded)
	}
	if got := DecodeCursorState([]byte("garbage")); got != (CursorState{}) {
		t.Fatalf("garbage = %+v", got)
	}
	if got := DecodeCursorState(nil); got != (CursorState{}) {
		t.Fatalf("nil = %+v", got)
	}
}
