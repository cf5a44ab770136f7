package capture

import (
	billing "meterscope/internal/billing/domain"
	catalog "meterscope/internal/catalog/domain"
)

// QueueItem is one (meter, metric) unit of chart-generation work. Documents
// are carried with the item so a run operates on a fixed snapshot.
type QueueItem struct {
	Meter     catalog.Meter
	Documents []billing.Document
	MetricKey billing.MetricKey
	Metric    billing.MetricInfo
}

// MeterGroup is all queue items sharing a meter id, in queue order.
type MeterGroup struct {
	Meter catalog.Meter
	Items []QueueItem
}

// ChartPoint is one period on a capture chart. Nil values mean "no data",
// which renders as a gap rather than a zero.
type ChartPoint struct {
	PeriodLabel      string
	DocumentAmount   *float64
	ReconciledAmount *float64
	MeterReading     *float64
}

// GroupByMeter partitions a queue into meter groups. Groups appear in order
// of each meter's first occurrence and items keep their relative queue
// order, so the union of all groups equals the input queue.
func GroupByMeter(queue []QueueItem) []MeterGroup {
	var groups []MeterGroup
	index := make(map[string]int)
	for _, item := range queue {
		i, ok := index[item.Meter.ID]
		if !ok {
			i = len(groups)
			index[item.Meter.ID] = i
			groups = append(groups, MeterGroup{Meter: item.Meter})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// SplitBatches splits meter groups into consecutive batches of at most size
// groups each. A non-positive size yields a single batch.
func SplitBatches(groups []MeterGroup, size int) [][]MeterGroup {
	if len(groups) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]MeterGroup{groups}
	}
	var batches [][]MeterGroup
	for start := 0; start < len(groups); start += size {
		end := start + size
		if end > len(groups) {
			end = len(groups)
		}
		batches = append(batches, groups[start:end])
	}
	return batches
}
