package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	catalog "meterscope/internal/catalog/domain"
)

const defaultSitesTable = "sites"

// SiteRepository is a Postgres implementation for sites.
type SiteRepository struct {
	db    DBTX
	table string
}

// NewSiteRepository constructs a repository.
func NewSiteRepository(db DBTX, opts ...SiteOption) *SiteRepository {
	repo := &SiteRepository{db: db, table: defaultSitesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SiteOption configures the repository.
type SiteOption func(*SiteRepository)

// WithSitesTable overrides the default table name.
func WithSitesTable(table string) SiteOption {
	return func(repo *SiteRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a site by id.
func (r *SiteRepository) Get(ctx context.Context, id string) (*catalog.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}
	if id == "" {
		return nil, errors.New("site repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, client_id, name, address, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var site catalog.Site
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&site.ID,
		&site.ClientID,
		&site.Name,
		&site.Address,
		&site.CreatedAt,
		&site.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	site.CreatedAt = site.CreatedAt.UTC()
	site.UpdatedAt = site.UpdatedAt.UTC()
	return &site, nil
}

// ListByClient returns the sites owned by a client ordered by name.
func (r *SiteRepository) ListByClient(ctx context.Context, clientID string) ([]catalog.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}
	if clientID == "" {
		return nil, errors.New("site repo: empty client id")
	}

	query := fmt.Sprintf(`
SELECT id, client_id, name, address, created_at, updated_at
FROM %s
WHERE client_id = $1
ORDER BY name`, r.table)

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []catalog.Site
	for rows.Next() {
		var site catalog.Site
		if err := rows.Scan(
			&site.ID,
			&site.ClientID,
			&site.Name,
			&site.Address,
			&site.CreatedAt,
			&site.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Save upserts a site.
func (r *SiteRepository) Save(ctx context.Context, site *catalog.Site) error {
	if r == nil || r.db == nil {
		return errors.New("site repo: nil db")
	}
	if site == nil {
		return errors.New("site repo: nil site")
	}
	if err := site.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, client_id, name, address)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET
	client_id = EXCLUDED.client_id,
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(ctx, query, site.ID, site.ClientID, site.Name, site.Address)
	return err
}

// Delete removes a site by id.
func (r *SiteRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("site repo: nil db")
	}
	if id == "" {
		return errors.New("site repo: empty id")
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
