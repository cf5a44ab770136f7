package recon

import (
	"testing"
	"time"
)

func float(v float64) *float64 { return &v }

func TestMetricValueMapping(t *testing.T) {
	run := Run{
		ID:             "run-1",
		MeterID:        "m-1",
		PeriodEnd:      time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TotalCost:      float(450.75),
		FixedCharges:   float(120.50),
		DemandCharges:  float(80),
		EnergyCost:     float(250.25),
		MaxDemandKVA:   float(42),
		TotalEnergyKWh: float(1310),
	}

	cases := []struct {
		key  string
		want float64
	}{
		{"total", 450.75},
		{"basic", 120.50},
		{"kva-charge", 80},
		{"kwh-charge", 250.25},
		{"kva-consumption", 42},
		{"kwh-consumption", 1310},
	}
	for _, tc := range cases {
		got := run.MetricValue(tc.key)
		if got == nil || *got != tc.want {
			t.Fatalf("MetricValue(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}

	if got := run.MetricValue("unknown"); got != nil {
		t.Fatalf("MetricValue(unknown) = %v, want nil", got)
	}
	if got := (Run{}).MetricValue("total"); got != nil {
		t.Fatalf("nil field should map to nil, got %v", got)
	}
}

func TestCoversMonth(t *testing.T) {
	run := Run{PeriodEnd: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)}

	if !run.CoversMonth(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("same year-month should match")
	}
	if run.CoversMonth(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("different month should not match")
	}
	if run.CoversMonth(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("different year should not match")
	}
}
