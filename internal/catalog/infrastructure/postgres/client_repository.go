package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	catalog "meterscope/internal/catalog/domain"
)

const defaultClientsTable = "clients"

// ClientRepository is a Postgres implementation for clients.
type ClientRepository struct {
	db    DBTX
	table string
}

// NewClientRepository constructs a repository.
func NewClientRepository(db DBTX, opts ...ClientOption) *ClientRepository {
	repo := &ClientRepository{db: db, table: defaultClientsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ClientOption configures the repository.
type ClientOption func(*ClientRepository)

// WithClientsTable overrides the default table name.
func WithClientsTable(table string) ClientOption {
	return func(repo *ClientRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a client by id.
func (r *ClientRepository) Get(ctx context.Context, id string) (*catalog.Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("client repo: nil db")
	}
	if id == "" {
		return nil, errors.New("client repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, contact_email, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var client catalog.Client
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.Name,
		&client.ContactEmail,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	client.CreatedAt = client.CreatedAt.UTC()
	client.UpdatedAt = client.UpdatedAt.UTC()
	return &client, nil
}

// List returns all clients ordered by name.
func (r *ClientRepository) List(ctx context.Context) ([]catalog.Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("client repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, contact_email, created_at, updated_at
FROM %s
ORDER BY name`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []catalog.Client
	for rows.Next() {
		var client catalog.Client
		if err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.ContactEmail,
			&client.CreatedAt,
			&client.UpdatedAt,
		); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// Save upserts a client.
func (r *ClientRepository) Save(ctx context.Context, client *catalog.Client) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	if client == nil {
		return errors.New("client repo: nil client")
	}
	if err := client.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, name, contact_email)
VALUES ($1, $2, $3)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	contact_email = EXCLUDED.contact_email,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(ctx, query, client.ID, client.Name, client.ContactEmail)
	return err
}

// Delete removes a client by id.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("client repo: nil db")
	}
	if id == "" {
		return errors.New("client repo: empty id")
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
