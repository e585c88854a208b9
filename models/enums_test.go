package models

import "testing"

func TestSaleStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SaleStatus
		want     bool
	}{
		{SaleStatusPending, SaleStatusCompleted, true},
		{SaleStatusPending, SaleStatusError, true},
		{SaleStatusPending, SaleStatusCancelled, true},
		{SaleStatusCompleted, SaleStatusCancelled, true},
		{SaleStatusCompleted, SaleStatusPending, false},
		{SaleStatusCancelled, SaleStatusCompleted, false},
		{SaleStatusCancelled, SaleStatusCancelled, false},
		{SaleStatusError, SaleStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNormalizeMovementType(t *testing.T) {
	cases := []struct {
		code string
		want MovementType
		ok   bool
	}{
		{"", MovementTypeSale, true},
		{"1", MovementTypeSale, true},
		{"V", MovementTypeSale, true},
		{"venta", MovementTypeSale, true},
		{"2", MovementTypeReturn, true},
		{"devolucion", MovementTypeReturn, true},
		{"3", MovementTypeComplimentary, true},
		{"Cortesia", MovementTypeComplimentary, true},
		{"promo", MovementType("promo"), false},
		{" promo ", MovementType("promo"), false},
	}
	for _, tc := range cases {
		got, ok := NormalizeMovementType(tc.code)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeMovementType(%q) = %q/%v, want %q/%v", tc.code, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeCancellationType(t *testing.T) {
	if got := NormalizeCancellationType("VOID"); got != CancellationTypeVoid {
		t.Errorf("VOID = %q", got)
	}
	if got := NormalizeCancellationType("r"); got != CancellationTypeRefund {
		t.Errorf("r = %q", got)
	}
	if got := NormalizeCancellationType("whatever"); got != CancellationTypeOther {
		t.Errorf("whatever = %q", got)
	}
}
