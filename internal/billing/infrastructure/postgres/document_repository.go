package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	billing "meterscope/internal/billing/domain"
)

const (
	defaultDocumentsTable = "billing_documents"
	defaultLineItemsTable = "billing_line_items"
)

// DBTX is the subset of database/sql used by repositories, satisfied by
// both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DocumentRepository is a Postgres implementation for billing documents.
type DocumentRepository struct {
	db         DBTX
	table      string
	itemsTable string
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(db DBTX, opts ...DocumentOption) *DocumentRepository {
	repo := &DocumentRepository{db: db, table: defaultDocumentsTable, itemsTable: defaultLineItemsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// DocumentOption configures the repository.
type DocumentOption func(*DocumentRepository)

// WithDocumentsTable overrides the default documents table name.
func WithDocumentsTable(table string) DocumentOption {
	return func(repo *DocumentRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithLineItemsTable overrides the default line items table name.
func WithLineItemsTable(table string) DocumentOption {
	return func(repo *DocumentRepository) {
		if table != "" {
			repo.itemsTable = table
		}
	}
}

// GetDocuments loads a meter's billing documents with their line items,
// ordered ascending by period end.
func (r *DocumentRepository) GetDocuments(ctx context.Context, meterID string) ([]billing.Document, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("document repo: nil db")
	}
	if meterID == "" {
		return nil, errors.New("document repo: empty meter id")
	}

	query := fmt.Sprintf(`
SELECT id, meter_id, period_start, period_end, total_amount, meter_reading, previous_reading, created_at
FROM %s
WHERE meter_id = $1
ORDER BY period_end`, r.table)

	rows, err := r.db.QueryContext(ctx, query, meterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []billing.Document
	index := make(map[string]int)
	for rows.Next() {
		var doc billing.Document
		var reading, previous sql.NullFloat64
		if err := rows.Scan(
			&doc.ID,
			&doc.MeterID,
			&doc.PeriodStart,
			&doc.PeriodEnd,
			&doc.TotalAmount,
			&reading,
			&previous,
			&doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		if reading.Valid {
			value := reading.Float64
			doc.MeterReading = &value
		}
		if previous.Valid {
			value := previous.Float64
			doc.PreviousReading = &value
		}
		doc.PeriodStart = doc.PeriodStart.UTC()
		doc.PeriodEnd = doc.PeriodEnd.UTC()
		index[doc.ID] = len(docs)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	itemsQuery := fmt.Sprintf(`
SELECT document_id, description, supply, unit, amount, consumption
FROM %s
WHERE document_id IN (SELECT id FROM %s WHERE meter_id = $1)
ORDER BY document_id, position`, r.itemsTable, r.table)

	itemRows, err := r.db.QueryContext(ctx, itemsQuery, meterID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var documentID string
		var item billing.LineItem
		var consumption sql.NullFloat64
		if err := itemRows.Scan(
			&documentID,
			&item.Description,
			&item.Supply,
			&item.Unit,
			&item.Amount,
			&consumption,
		); err != nil {
			return nil, err
		}
		if consumption.Valid {
			value := consumption.Float64
			item.Consumption = &value
		}
		if i, ok := index[documentID]; ok {
			docs[i].LineItems = append(docs[i].LineItems, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Save upserts a document and replaces its line items.
func (r *DocumentRepository) Save(ctx context.Context, doc *billing.Document) error {
	if r == nil || r.db == nil {
		return errors.New("document repo: nil db")
	}
	if doc == nil {
		return errors.New("document repo: nil document")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, meter_id, period_start, period_end, total_amount, meter_reading, previous_reading)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id)
DO UPDATE SET
	meter_id = EXCLUDED.meter_id,
	period_start = EXCLUDED.period_start,
	period_end = EXCLUDED.period_end,
	total_amount = EXCLUDED.total_amount,
	meter_reading = EXCLUDED.meter_reading,
	previous_reading = EXCLUDED.previous_reading`, r.table)

	if _, err := r.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.MeterID,
		doc.PeriodStart,
		doc.PeriodEnd,
		doc.TotalAmount,
		nullableFloat(doc.MeterReading),
		nullableFloat(doc.PreviousReading),
	); err != nil {
		return err
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, r.itemsTable)
	if _, err := r.db.ExecContext(ctx, deleteQuery, doc.ID); err != nil {
		return err
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (document_id, position, description, supply, unit, amount, consumption)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.itemsTable)

	for i, item := range doc.LineItems {
		if _, err := r.db.ExecContext(
			ctx,
			insertQuery,
			doc.ID,
			i,
			item.Description,
			item.Supply,
			item.Unit,
			item.Amount,
			nullableFloat(item.Consumption),
		); err != nil {
			return err
		}
	}
	return nil
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
