package application

import (
	"context"
	"errors"
	"sort"

	billing "meterscope/internal/billing/domain"
	capture "meterscope/internal/capture/domain"
	catalog "meterscope/internal/catalog/domain"
	recon "meterscope/internal/recon/domain"
)

const periodLabelLayout = "Jan 2006"

// DocumentSource loads a meter's billing documents, ordered by period end.
type DocumentSource interface {
	GetDocuments(ctx context.Context, meterID string) ([]billing.Document, error)
}

// ReconciliationSource loads a meter's reconciliation run aggregates.
type ReconciliationSource interface {
	GetReconciliationRuns(ctx context.Context, meterID string) ([]recon.Run, error)
}

// Assembler joins document metrics with reconciliation aggregates into an
// ordered chart series.
type Assembler struct {
	recon ReconciliationSource
}

// NewAssembler constructs an assembler.
func NewAssembler(source ReconciliationSource) (*Assembler, error) {
	if source == nil {
		return nil, errors.New("chart assembler: nil reconciliation source")
	}
	return &Assembler{recon: source}, nil
}

// Assemble builds the chart series for one (meter, documents, metric)
// triple. Documents are emitted ascending by period end; each point carries
// the document-side metric value, the matching reconciliation run's value
// for the same year-month (nil when no run matches), and the document's
// meter reading. An empty result means no document produced a value, which
// the scheduler reports as data-unavailable.
func (a *Assembler) Assemble(ctx context.Context, meter catalog.Meter, documents []billing.Document, metricKey billing.MetricKey) ([]capture.ChartPoint, error) {
	if a == nil || a.recon == nil {
		return nil, errors.New("chart assembler: nil reconciliation source")
	}

	runs, err := a.recon.GetReconciliationRuns(ctx, meter.ID)
	if err != nil {
		return nil, err
	}

	ordered := append([]billing.Document(nil), documents...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PeriodEnd.Before(ordered[j].PeriodEnd)
	})

	points := make([]capture.ChartPoint, 0, len(ordered))
	hasValue := false
	for _, doc := range ordered {
		value := billing.MetricValue(doc, metricKey)
		if value != nil {
			hasValue = true
		}
		_, reading := billing.MetricReadings(doc, metricKey)

		var reconciled *float64
		for _, run := range runs {
			if run.CoversMonth(doc.PeriodEnd) {
				reconciled = run.MetricValue(string(metricKey))
				break
			}
		}

		points = append(points, capture.ChartPoint{
			PeriodLabel:      doc.PeriodEnd.Format(periodLabelLayout),
			DocumentAmount:   value,
			ReconciledAmount: reconciled,
			MeterReading:     reading,
		})
	}
	if !hasValue {
		return nil, nil
	}
	return points, nil
}
