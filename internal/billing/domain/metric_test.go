package billing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func floatPtr(v float64) *float64 { return &v }

func testDocument() Document {
	return Document{
		ID:          "doc-1",
		MeterID:     "meter-1",
		TotalAmount: decimal.NewFromFloat(120.5),
		LineItems: []LineItem{
			{Description: "Basic charge", Unit: UnitMonthly, Supply: SupplyNormal, Amount: decimal.NewFromInt(30)},
			{Description: "Demand", Unit: UnitKVA, Supply: SupplyNormal, Amount: decimal.NewFromInt(40), Consumption: floatPtr(125)},
			{Description: "Energy", Unit: UnitKWh, Supply: SupplyNormal, Amount: decimal.NewFromInt(50), Consumption: floatPtr(980)},
			{Description: "Standby energy", Unit: UnitKWh, Supply: SupplyEmergency, Amount: decimal.NewFromInt(5), Consumption: floatPtr(12)},
		},
	}
}

func TestMetricValueTotalExcludesEmergencySupply(t *testing.T) {
	doc := Document{
		LineItems: []LineItem{
			{Amount: decimal.NewFromInt(10), Supply: SupplyNormal},
			{Amount: decimal.NewFromInt(5), Supply: SupplyEmergency},
		},
	}
	value := MetricValue(doc, MetricTotal)
	if value == nil {
		t.Fatal("expected a total value")
	}
	if *value != 10 {
		t.Fatalf("total = %v, want 10", *value)
	}
}

func TestMetricValuePerKey(t *testing.T) {
	doc := testDocument()

	cases := []struct {
		key  MetricKey
		want float64
	}{
		{MetricTotal, 120},
		{MetricBasic, 30},
		{MetricKVACharge, 40},
		{MetricKWhCharge, 50},
		{MetricKVAConsumption, 125},
		{MetricKWhConsumption, 980},
	}
	for _, tc := range cases {
		value := MetricValue(doc, tc.key)
		if value == nil {
			t.Fatalf("%s: expected value, got nil", tc.key)
		}
		if *value != tc.want {
			t.Fatalf("%s = %v, want %v", tc.key, *value, tc.want)
		}
	}
}

func TestMetricValueUnknownKeyFallsBackToDocumentTotal(t *testing.T) {
	doc := testDocument()
	value := MetricValue(doc, MetricKey("surcharge"))
	if value == nil {
		t.Fatal("expected document total")
	}
	if *value != 120.5 {
		t.Fatalf("fallback = %v, want 120.5", *value)
	}
}

func TestMetricValueNoMatchIsNilNotZero(t *testing.T) {
	doc := Document{
		LineItems: []LineItem{
			{Unit: UnitKWh, Supply: SupplyEmergency, Amount: decimal.NewFromInt(5)},
		},
	}
	if value := MetricValue(doc, MetricBasic); value != nil {
		t.Fatalf("basic = %v, want nil", *value)
	}
	if value := MetricValue(doc, MetricKWhCharge); value != nil {
		t.Fatalf("kwh-charge = %v, want nil", *value)
	}
	// Emergency-only documents have no total either.
	if value := MetricValue(doc, MetricTotal); value != nil {
		t.Fatalf("total = %v, want nil", *value)
	}
}

func TestMetricValueEmptyLineItems(t *testing.T) {
	doc := Document{}
	if value := MetricValue(doc, MetricTotal); value != nil {
		t.Fatalf("total on empty document = %v, want nil", *value)
	}
	if value := MetricValue(doc, MetricKVAConsumption); value != nil {
		t.Fatalf("kva-consumption on empty document = %v, want nil", *value)
	}
}

func TestMetricReadings(t *testing.T) {
	doc := testDocument()
	doc.PreviousReading = floatPtr(1000)
	doc.MeterReading = floatPtr(1980)

	previous, current := MetricReadings(doc, MetricKWhConsumption)
	if previous == nil || *previous != 1000 {
		t.Fatalf("previous = %v, want 1000", previous)
	}
	if current == nil || *current != 1980 {
		t.Fatalf("current = %v, want 1980", current)
	}
}

func TestMetricCatalogLookup(t *testing.T) {
	info, ok := MetricInfoFor(MetricBasic)
	if !ok {
		t.Fatal("basic metric missing from catalog")
	}
	if info.Title != "Basic Charge" {
		t.Fatalf("title = %q, want %q", info.Title, "Basic Charge")
	}
	if _, ok := MetricInfoFor(MetricKey("nope")); ok {
		t.Fatal("unexpected catalog hit for unknown key")
	}
}
