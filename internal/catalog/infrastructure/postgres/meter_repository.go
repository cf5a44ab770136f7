package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	catalog "meterscope/internal/catalog/domain"
)

const defaultMetersTable = "meters"

// MeterRepository is a Postgres implementation for meters.
type MeterRepository struct {
	db    DBTX
	table string
}

// NewMeterRepository constructs a repository.
func NewMeterRepository(db DBTX, opts ...MeterOption) *MeterRepository {
	repo := &MeterRepository{db: db, table: defaultMetersTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// MeterOption configures the repository.
type MeterOption func(*MeterRepository)

// WithMetersTable overrides the default table name.
func WithMetersTable(table string) MeterOption {
	return func(repo *MeterRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const meterColumns = "id, site_id, meter_number, meter_type, tariff, rating_kva, created_at, updated_at"

func scanMeter(scan func(...any) error) (catalog.Meter, error) {
	var meter catalog.Meter
	err := scan(
		&meter.ID,
		&meter.SiteID,
		&meter.Number,
		&meter.MeterType,
		&meter.Tariff,
		&meter.RatingKVA,
		&meter.CreatedAt,
		&meter.UpdatedAt,
	)
	if err == nil {
		meter.CreatedAt = meter.CreatedAt.UTC()
		meter.UpdatedAt = meter.UpdatedAt.UTC()
	}
	return meter, err
}

// Get loads a meter by id.
func (r *MeterRepository) Get(ctx context.Context, id string) (*catalog.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	if id == "" {
		return nil, errors.New("meter repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, meterColumns, r.table)

	meter, err := scanMeter(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &meter, nil
}

// List returns all meters ordered by meter number.
func (r *MeterRepository) List(ctx context.Context) ([]catalog.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY meter_number`, meterColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeters(rows)
}

// ListBySite returns the meters at a site ordered by meter number.
func (r *MeterRepository) ListBySite(ctx context.Context, siteID string) ([]catalog.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	if siteID == "" {
		return nil, errors.New("meter repo: empty site id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE site_id = $1
ORDER BY meter_number`, meterColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeters(rows)
}

func collectMeters(rows *sql.Rows) ([]catalog.Meter, error) {
	var meters []catalog.Meter
	for rows.Next() {
		meter, err := scanMeter(rows.Scan)
		if err != nil {
			return nil, err
		}
		meters = append(meters, meter)
	}
	return meters, rows.Err()
}

// Save upserts a meter.
func (r *MeterRepository) Save(ctx context.Context, meter *catalog.Meter) error {
	if r == nil || r.db == nil {
		return errors.New("meter repo: nil db")
	}
	if meter == nil {
		return errors.New("meter repo: nil meter")
	}
	if err := meter.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, site_id, meter_number, meter_type, tariff, rating_kva)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id)
DO UPDATE SET
	site_id = EXCLUDED.site_id,
	meter_number = EXCLUDED.meter_number,
	meter_type = EXCLUDED.meter_type,
	tariff = EXCLUDED.tariff,
	rating_kva = EXCLUDED.rating_kva,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		meter.ID,
		meter.SiteID,
		meter.Number,
		meter.MeterType,
		meter.Tariff,
		meter.RatingKVA,
	)
	return err
}

// Delete removes a meter by id.
func (r *MeterRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("meter repo: nil db")
	}
	if id == "" {
		return errors.New("meter repo: empty id")
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
