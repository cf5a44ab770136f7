package catalog

import (
	"context"
	"errors"
	"time"
)

// Site represents a supply point belonging to a client.
type Site struct {
	ID        string
	ClientID  string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks site invariants.
func (s Site) Validate() error {
	if s.ID == "" {
		return errors.New("site: empty id")
	}
	if s.ClientID == "" {
		return errors.New("site: empty client id")
	}
	if s.Name == "" {
		return errors.New("site: empty name")
	}
	return nil
}

// SiteRepository manages site persistence.
type SiteRepository interface {
	Get(ctx context.Context, id string) (*Site, error)
	ListByClient(ctx context.Context, clientID string) ([]Site, error)
	Save(ctx context.Context, site *Site) error
	Delete(ctx context.Context, id string) error
}
