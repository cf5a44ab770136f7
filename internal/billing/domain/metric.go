package billing

// MetricKey identifies one chartable billing measure.
type MetricKey string

// Metric catalog keys.
const (
	MetricTotal          MetricKey = "total"
	MetricBasic          MetricKey = "basic"
	MetricKVACharge      MetricKey = "kva-charge"
	MetricKWhCharge      MetricKey = "kwh-charge"
	MetricKVAConsumption MetricKey = "kva-consumption"
	MetricKWhConsumption MetricKey = "kwh-consumption"
)

// MetricInfo carries the presentation attributes of a metric.
type MetricInfo struct {
	Key      MetricKey
	Title    string
	Unit     string
	Filename string
}

// MetricCatalog is the default chartable metric set, in capture order.
var MetricCatalog = []MetricInfo{
	{Key: MetricTotal, Title: "Total Cost", Unit: "R", Filename: "total-cost"},
	{Key: MetricBasic, Title: "Basic Charge", Unit: "R", Filename: "basic-charge"},
	{Key: MetricKVACharge, Title: "kVA Charge", Unit: "R", Filename: "kva-charge"},
	{Key: MetricKWhCharge, Title: "kWh Charge", Unit: "R", Filename: "kwh-charge"},
	{Key: MetricKVAConsumption, Title: "kVA Consumption", Unit: "kVA", Filename: "kva-consumption"},
	{Key: MetricKWhConsumption, Title: "kWh Consumption", Unit: "kWh", Filename: "kwh-consumption"},
}

// MetricInfoFor looks up catalog info for a key.
func MetricInfoFor(key MetricKey) (MetricInfo, bool) {
	for _, info := range MetricCatalog {
		if info.Key == key {
			return info, true
		}
	}
	return MetricInfo{}, false
}

// MetricValue extracts the value of a metric from a document's line items.
// It returns nil when no line item matches, which downstream code treats
// as "no data" rather than a zero value.
func MetricValue(doc Document, key MetricKey) *float64 {
	switch key {
	case MetricTotal:
		matched := false
		sum := 0.0
		for _, item := range doc.LineItems {
			if item.Supply == SupplyEmergency {
				continue
			}
			sum += item.Amount.InexactFloat64()
			matched = true
		}
		if !matched {
			return nil
		}
		return &sum
	case MetricBasic:
		return amountOf(doc, func(item LineItem) bool {
			return item.Unit == UnitMonthly
		})
	case MetricKVACharge:
		return amountOf(doc, func(item LineItem) bool {
			return item.Unit == UnitKVA
		})
	case MetricKWhCharge:
		return amountOf(doc, func(item LineItem) bool {
			return item.Unit == UnitKWh && item.Supply == SupplyNormal
		})
	case MetricKVAConsumption:
		return consumptionOf(doc, func(item LineItem) bool {
			return item.Unit == UnitKVA
		})
	case MetricKWhConsumption:
		return consumptionOf(doc, func(item LineItem) bool {
			return item.Unit == UnitKWh && item.Supply == SupplyNormal
		})
	default:
		total := doc.TotalAmount.InexactFloat64()
		return &total
	}
}

// MetricReadings returns the previous and current meter readings carried by
// the document. Readings are metric-independent; the key is accepted for
// interface symmetry with MetricValue.
func MetricReadings(doc Document, key MetricKey) (previous, current *float64) {
	_ = key
	return doc.PreviousReading, doc.MeterReading
}

func amountOf(doc Document, match func(LineItem) bool) *float64 {
	for _, item := range doc.LineItems {
		if match(item) {
			value := item.Amount.InexactFloat64()
			return &value
		}
	}
	return nil
}

func consumptionOf(doc Document, match func(LineItem) bool) *float64 {
	for _, item := range doc.LineItems {
		if match(item) {
			return item.Consumption
		}
	}
	return nil
}
