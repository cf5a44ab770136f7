package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Supply classifications for a line item.
const (
	SupplyNormal    = "Normal"
	SupplyEmergency = "Emergency"
)

// Charge units for a line item.
const (
	UnitMonthly = "Monthly"
	UnitKVA     = "kVA"
	UnitKWh     = "kWh"
)

// LineItem is a single charge line on a billing document.
type LineItem struct {
	Description string
	Supply      string
	Unit        string
	Amount      decimal.Decimal
	Consumption *float64
}

// Document represents one billing document (an invoice period) for a meter.
type Document struct {
	ID              string
	MeterID         string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalAmount     decimal.Decimal
	MeterReading    *float64
	PreviousReading *float64
	LineItems       []LineItem
	CreatedAt       time.Time
}

// Validate checks document invariants.
func (d Document) Validate() error {
	if d.ID == "" {
		return errors.New("document: empty id")
	}
	if d.MeterID == "" {
		return errors.New("document: empty meter id")
	}
	if d.PeriodEnd.IsZero() {
		return errors.New("document: zero period end")
	}
	if !d.PeriodStart.IsZero() && d.PeriodEnd.Before(d.PeriodStart) {
		return errors.New("document: period end before start")
	}
	return nil
}

// DocumentRepository manages billing document persistence.
type DocumentRepository interface {
	GetDocuments(ctx context.Context, meterID string) ([]Document, error)
	Save(ctx context.Context, doc *Document) error
}
