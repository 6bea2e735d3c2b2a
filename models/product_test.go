package models

import "testing"

func ptr(f float64) *float64 { return &f }

func TestDiscountPercentage(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		original *float64
		want     float64
		ok       bool
	}{
		{"twenty percent", 80, ptr(100), 20.0, true},
		{"rounded to one decimal", 66.66, ptr(99.99), 33.3, true},
		{"equal prices", 100, ptr(100), 0, false},
		{"absent original", 100, nil, 0, false},
		{"original below price", 120, ptr(100), 0, false},
	}

	for _, tt := range tests {
		got, ok := DiscountPercentage(tt.price, tt.original)
		if ok != tt.ok {
			t.Errorf("%s: ok got %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %.2f, want %.2f", tt.name, got, tt.want)
		}
	}
}

func TestRunReportTotals(t *testing.T) {
	r := &RunReport{Stores: []StoreStats{
		{Name: "A", Products: 10, Errors: 1},
		{Name: "B", Products: 5, Errors: 2},
	}}
	if r.TotalProducts() != 15 {
		t.Errorf("TotalProducts: got %d, want 15", r.TotalProducts())
	}
	if r.TotalErrors() != 3 {
		t.Errorf("TotalErrors: got %d, want 3", r.TotalErrors())
	}
}
