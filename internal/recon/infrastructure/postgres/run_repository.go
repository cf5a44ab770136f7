package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	recon "meterscope/internal/recon/domain"
)

const defaultRunsTable = "reconciliation_runs"

// DBTX is the subset of database/sql used by repositories, satisfied by
// both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunRepository is a Postgres implementation for reconciliation runs.
type RunRepository struct {
	db    DBTX
	table string
}

// NewRunRepository constructs a repository.
func NewRunRepository(db DBTX, opts ...RunOption) *RunRepository {
	repo := &RunRepository{db: db, table: defaultRunsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RunOption configures the repository.
type RunOption func(*RunRepository)

// WithRunsTable overrides the default table name.
func WithRunsTable(table string) RunOption {
	return func(repo *RunRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// GetReconciliationRuns loads a meter's runs ordered ascending by range end.
func (r *RunRepository) GetReconciliationRuns(ctx context.Context, meterID string) ([]recon.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("recon run repo: nil db")
	}
	if meterID == "" {
		return nil, errors.New("recon run repo: empty meter id")
	}

	query := fmt.Sprintf(`
SELECT id, meter_id, period_start, period_end, total_cost, fixed_charges, demand_charges, energy_cost, max_demand_kva, total_energy_kwh, created_at
FROM %s
WHERE meter_id = $1
ORDER BY period_end`, r.table)

	rows, err := r.db.QueryContext(ctx, query, meterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []recon.Run
	for rows.Next() {
		var run recon.Run
		var totalCost, fixedCharges, demandCharges, energyCost, maxDemand, totalEnergy sql.NullFloat64
		if err := rows.Scan(
			&run.ID,
			&run.MeterID,
			&run.PeriodStart,
			&run.PeriodEnd,
			&totalCost,
			&fixedCharges,
			&demandCharges,
			&energyCost,
			&maxDemand,
			&totalEnergy,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		run.PeriodStart = run.PeriodStart.UTC()
		run.PeriodEnd = run.PeriodEnd.UTC()
		run.TotalCost = nullableFloat(totalCost)
		run.FixedCharges = nullableFloat(fixedCharges)
		run.DemandCharges = nullableFloat(demandCharges)
		run.EnergyCost = nullableFloat(energyCost)
		run.MaxDemandKVA = nullableFloat(maxDemand)
		run.TotalEnergyKWh = nullableFloat(totalEnergy)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullableFloat(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	result := value.Float64
	return &result
}
