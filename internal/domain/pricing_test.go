package domain

import "testing"

func TestRoundToNine(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want int64
	}{
		{"rounds up to nearest nine", 242, 249},
		{"multiple of ten moves to next nine", 250, 259},
		{"already ending in nine is untouched", 239, 239},
		{"fractional rounds half away from zero first", 242.5, 249},
		{"multiplier product", 220 * 1.1, 249},
		{"small value", 1, 9},
		{"zero", 0, 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoundToNine(tc.in); got != tc.want {
				t.Fatalf("RoundToNine(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestRoundToNineIdempotent(t *testing.T) {
	for _, v := range []float64{1, 42, 99, 242, 250, 999, 123456} {
		first := RoundToNine(v)
		if second := RoundToNine(float64(first)); second != first {
			t.Fatalf("RoundToNine not idempotent for %v: %d then %d", v, first, second)
		}
		if first%10 != 9 {
			t.Fatalf("RoundToNine(%v) = %d does not end in 9", v, first)
		}
	}
}

func TestProductUnitPrice(t *testing.T) {
	discounted := int64(180)
	p := Product{BasePrice: 220, DiscountedPrice: &discounted}
	if got := p.UnitPrice(); got != 180 {
		t.Fatalf("expected discounted price 180, got %d", got)
	}
	p.DiscountedPrice = nil
	if got := p.UnitPrice(); got != 220 {
		t.Fatalf("expected base price 220, got %d", got)
	}
}

func TestAddressSnapshotIsDetached(t *testing.T) {
	line2 := "Flat 4B"
	addr := Address{
		Name:  "Asha",
		Line1: "12 MG Road",
		Line2: &line2,
		City:  "Bengaluru",
	}
	snap := addr.Snapshot()

	line2 = "changed"
	if snap.Line2 == nil || *snap.Line2 != "Flat 4B" {
		t.Fatalf("snapshot shares storage with source address: %v", snap.Line2)
	}
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{UnitPrice: 249, Quantity: 2}
	if got := item.LineTotal(); got != 498 {
		t.Fatalf("expected line total 498, got %d", got)
	}
}
