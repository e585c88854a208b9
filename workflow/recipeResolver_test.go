package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestScaleIngredientQty(t *testing.T) {
	cases := []struct {
		name        string
		qtyPerYield string
		qtySold     string
		yieldQty    string
		waste       string
		want        string
	}{
		{"single portion with waste", "0.3", "1", "1", "5", "0.315"},
		{"multiple sold", "0.3", "2", "1", "5", "0.63"},
		{"no waste", "2", "3", "1", "0", "6"},
		{"batch recipe scales down", "1", "2", "4", "0", "0.5"},
		{"zero yield treated as one", "0.3", "1", "0", "5", "0.315"},
		{"fractional sold qty", "0.5", "0.5", "1", "10", "0.275"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScaleIngredientQty(d(tc.qtyPerYield), d(tc.qtySold), d(tc.yieldQty), d(tc.waste))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("got %s, want %s", got.String(), tc.want)
			}
		})
	}
}

func TestScaleIngredientQtyCost(t *testing.T) {
	// 0.3kg at 5% waste costs 3.15 at $10/kg.
	qty := ScaleIngredientQty(d("0.3"), d("1"), d("1"), d("5"))
	cost := qty.Mul(d("10"))
	if !cost.Equal(d("3.15")) {
		t.Fatalf("cost = %s, want 3.15", cost.String())
	}
}
