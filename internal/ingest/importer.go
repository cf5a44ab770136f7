package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	billing "meterscope/internal/billing/domain"
	catalog "meterscope/internal/catalog/domain"
)

const dateLayout = "2006-01-02"

// Required CSV columns; one row per billing line item, grouped into
// documents by document_id.
var requiredColumns = []string{
	"document_id", "meter_id", "period_start", "period_end",
	"description", "supply", "unit", "amount",
}

// Result summarises one import pass.
type Result struct {
	Rows      int      `json:"rows"`
	Documents int      `json:"documents"`
	Imported  int      `json:"imported"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Importer parses billing-document CSV exports and persists them.
type Importer struct {
	documents billing.DocumentRepository
	meters    catalog.MeterRepository
}

// NewImporter constructs an importer. The meter repository is used to
// reject documents referencing unknown meters.
func NewImporter(documents billing.DocumentRepository, meters catalog.MeterRepository) (*Importer, error) {
	if documents == nil {
		return nil, errors.New("ingest: nil document repository")
	}
	if meters == nil {
		return nil, errors.New("ingest: nil meter repository")
	}
	return &Importer{documents: documents, meters: meters}, nil
}

// ImportCSV reads line-item rows from a CSV stream, assembles documents and
// saves them. Row-level failures are reported in the result; only header
// and stream errors abort the import.
func (imp *Importer) ImportCSV(ctx context.Context, stream io.Reader) (*Result, error) {
	reader := csv.NewReader(stream)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &Result{}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return result, nil
		}
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}
	columns := make(map[string]int, len(headers))
	for i, h := range headers {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("ingest: missing column %q", name)
		}
	}

	// Documents in first-seen order so import order is stable.
	var order []string
	docs := make(map[string]*billing.Document)

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		result.Rows++
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if err := imp.appendRow(record, columns, docs, &order); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
		}
	}

	result.Documents = len(order)
	for _, id := range order {
		doc := docs[id]
		if err := imp.saveDocument(ctx, doc); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", id, err))
			continue
		}
		result.Imported++
	}
	return result, nil
}

func (imp *Importer) appendRow(record []string, columns map[string]int, docs map[string]*billing.Document, order *[]string) error {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	docID := field("document_id")
	if docID == "" {
		return errors.New("empty document_id")
	}

	doc, ok := docs[docID]
	if !ok {
		periodStart, err := parseDate(field("period_start"))
		if err != nil {
			return fmt.Errorf("period_start: %v", err)
		}
		periodEnd, err := parseDate(field("period_end"))
		if err != nil {
			return fmt.Errorf("period_end: %v", err)
		}
		doc = &billing.Document{
			ID:          docID,
			MeterID:     field("meter_id"),
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		}
		if v := field("total_amount"); v != "" {
			total, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("total_amount: %v", err)
			}
			doc.TotalAmount = total
		}
		if v := field("meter_reading"); v != "" {
			reading, err := parseFloat(v)
			if err != nil {
				return fmt.Errorf("meter_reading: %v", err)
			}
			doc.MeterReading = reading
		}
		if v := field("previous_reading"); v != "" {
			reading, err := parseFloat(v)
			if err != nil {
				return fmt.Errorf("previous_reading: %v", err)
			}
			doc.PreviousReading = reading
		}
		docs[docID] = doc
		*order = append(*order, docID)
	}

	amount, err := decimal.NewFromString(field("amount"))
	if err != nil {
		return fmt.Errorf("amount: %v", err)
	}
	item := billing.LineItem{
		Description: field("description"),
		Supply:      field("supply"),
		Unit:        field("unit"),
		Amount:      amount,
	}
	if v := field("consumption"); v != "" {
		consumption, err := parseFloat(v)
		if err != nil {
			return fmt.Errorf("consumption: %v", err)
		}
		item.Consumption = consumption
	}
	doc.LineItems = append(doc.LineItems, item)
	return nil
}

func (imp *Importer) saveDocument(ctx context.Context, doc *billing.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if len(doc.LineItems) == 0 {
		return errors.New("no line items")
	}
	meter, err := imp.meters.Get(ctx, doc.MeterID)
	if err != nil {
		return err
	}
	if meter == nil {
		return fmt.Errorf("unknown meter %q", doc.MeterID)
	}
	return imp.documents.Save(ctx, doc)
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	return time.Parse(dateLayout, value)
}

func parseFloat(value string) (*float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
