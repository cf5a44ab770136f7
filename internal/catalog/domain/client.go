package catalog

import (
	"context"
	"errors"
	"time"
)

// Client represents a billing client that owns one or more sites.
type Client struct {
	ID           string
	Name         string
	ContactEmail string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks client invariants.
func (c Client) Validate() error {
	if c.ID == "" {
		return errors.New("client: empty id")
	}
	if c.Name == "" {
		return errors.New("client: empty name")
	}
	return nil
}

// ClientRepository manages client persistence.
type ClientRepository interface {
	Get(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context) ([]Client, error)
	Save(ctx context.Context, client *Client) error
	Delete(ctx context.Context, id string) error
}
