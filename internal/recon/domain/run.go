package recon

import (
	"context"
	"errors"
	"time"
)

// Run is one reconciliation run's computed aggregates for a meter over a
// date range. Metric fields are nullable: a nil field means the run did not
// compute that measure.
type Run struct {
	ID             string
	MeterID        string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	TotalCost      *float64
	FixedCharges   *float64
	DemandCharges  *float64
	EnergyCost     *float64
	MaxDemandKVA   *float64
	TotalEnergyKWh *float64
	CreatedAt      time.Time
}

// Validate checks run invariants.
func (r Run) Validate() error {
	if r.ID == "" {
		return errors.New("recon run: empty id")
	}
	if r.MeterID == "" {
		return errors.New("recon run: empty meter id")
	}
	if r.PeriodEnd.IsZero() {
		return errors.New("recon run: zero period end")
	}
	return nil
}

// MetricValue maps a chart metric key to the run's aggregate field.
func (r Run) MetricValue(metricKey string) *float64 {
	switch metricKey {
	case "total":
		return r.TotalCost
	case "basic":
		return r.FixedCharges
	case "kva-charge":
		return r.DemandCharges
	case "kwh-charge":
		return r.EnergyCost
	case "kva-consumption":
		return r.MaxDemandKVA
	case "kwh-consumption":
		return r.TotalEnergyKWh
	default:
		return nil
	}
}

// CoversMonth reports whether the run's range end falls in the same
// year-month as the given time.
func (r Run) CoversMonth(at time.Time) bool {
	return r.PeriodEnd.Year() == at.Year() && r.PeriodEnd.Month() == at.Month()
}

// RunRepository manages reconciliation run persistence.
type RunRepository interface {
	GetReconciliationRuns(ctx context.Context, meterID string) ([]Run, error)
}
