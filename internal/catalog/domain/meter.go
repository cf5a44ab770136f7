package catalog

import (
	"context"
	"errors"
	"time"
)

// Meter represents a metered supply point. Descriptive attributes are
// treated as immutable for the duration of a capture run.
type Meter struct {
	ID        string
	SiteID    string
	Number    string
	MeterType string
	Tariff    string
	RatingKVA float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks meter invariants.
func (m Meter) Validate() error {
	if m.ID == "" {
		return errors.New("meter: empty id")
	}
	if m.SiteID == "" {
		return errors.New("meter: empty site id")
	}
	if m.Number == "" {
		return errors.New("meter: empty meter number")
	}
	if m.RatingKVA < 0 {
		return errors.New("meter: negative rating")
	}
	return nil
}

// MeterRepository manages meter persistence.
type MeterRepository interface {
	Get(ctx context.Context, id string) (*Meter, error)
	List(ctx context.Context) ([]Meter, error)
	ListBySite(ctx context.Context, siteID string) ([]Meter, error)
	Save(ctx context.Context, meter *Meter) error
	Delete(ctx context.Context, id string) error
}
