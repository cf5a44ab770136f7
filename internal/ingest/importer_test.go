package ingest

import (
	"context"
	"strings"
	"testing"

	billing "meterscope/internal/billing/domain"
	catalog "meterscope/internal/catalog/domain"
)

type stubDocuments struct {
	saved []billing.Document
}

func (s *stubDocuments) GetDocuments(context.Context, string) ([]billing.Document, error) {
	return nil, nil
}

func (s *stubDocuments) Save(_ context.Context, doc *billing.Document) error {
	s.saved = append(s.saved, *doc)
	return nil
}

type stubMeters struct {
	known map[string]bool
}

func (s *stubMeters) Get(_ context.Context, id string) (*catalog.Meter, error) {
	if s.known[id] {
		return &catalog.Meter{ID: id, SiteID: "site-1", Number: "MTR-" + id}, nil
	}
	return nil, nil
}

func (s *stubMeters) List(context.Context) ([]catalog.Meter, error)               { return nil, nil }
func (s *stubMeters) ListBySite(context.Context, string) ([]catalog.Meter, error) { return nil, nil }
func (s *stubMeters) Save(context.Context, *catalog.Meter) error                  { return nil }
func (s *stubMeters) Delete(context.Context, string) error                        { return nil }

const sampleCSV = `document_id,meter_id,period_start,period_end,total_amount,meter_reading,previous_reading,description,supply,unit,amount,consumption
doc-1,m-1,2026-03-01,2026-03-31,450.75,1200,1100,Basic Charge,Normal,Monthly,120.50,
doc-1,m-1,2026-03-01,2026-03-31,450.75,1200,1100,Energy Charge,Normal,kWh,330.25,210.4
doc-2,m-1,2026-04-01,2026-04-30,98.00,,,Basic Charge,Normal,Monthly,98.00,
`

func TestImportCSVGroupsLineItems(t *testing.T) {
	docs := &stubDocuments{}
	importer, err := NewImporter(docs, &stubMeters{known: map[string]bool{"m-1": true}})
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}

	result, err := importer.ImportCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.Rows != 3 || result.Documents != 2 || result.Imported != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(docs.saved) != 2 {
		t.Fatalf("saved %d documents, want 2", len(docs.saved))
	}

	first := docs.saved[0]
	if first.ID != "doc-1" || len(first.LineItems) != 2 {
		t.Fatalf("doc-1 = %+v", first)
	}
	if first.MeterReading == nil || *first.MeterReading != 1200 {
		t.Fatalf("meter reading = %v", first.MeterReading)
	}
	if first.LineItems[1].Consumption == nil || *first.LineItems[1].Consumption != 210.4 {
		t.Fatalf("consumption = %v", first.LineItems[1].Consumption)
	}
	if got := first.TotalAmount.StringFixed(2); got != "450.75" {
		t.Fatalf("total = %s", got)
	}

	second := docs.saved[1]
	if second.ID != "doc-2" || second.MeterReading != nil {
		t.Fatalf("doc-2 = %+v", second)
	}
}

func TestImportCSVRejectsUnknownMeter(t *testing.T) {
	docs := &stubDocuments{}
	importer, err := NewImporter(docs, &stubMeters{known: map[string]bool{}})
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}

	result, err := importer.ImportCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.Imported != 0 || result.Failed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(docs.saved) != 0 {
		t.Fatalf("saved %d documents, want 0", len(docs.saved))
	}
}

func TestImportCSVMissingColumn(t *testing.T) {
	importer, err := NewImporter(&stubDocuments{}, &stubMeters{})
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}

	_, err = importer.ImportCSV(context.Background(), strings.NewReader("meter_id,amount\nm-1,10\n"))
	if err == nil || !strings.Contains(err.Error(), "document_id") {
		t.Fatalf("err = %v, want missing column", err)
	}
}

func TestImportCSVRowErrorsDoNotAbort(t *testing.T) {
	docs := &stubDocuments{}
	importer, err := NewImporter(docs, &stubMeters{known: map[string]bool{"m-1": true}})
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}

	csv := "document_id,meter_id,period_start,period_end,description,supply,unit,amount\n" +
		"doc-1,m-1,2026-03-01,2026-03-31,Basic Charge,Normal,Monthly,not-a-number\n" +
		"doc-2,m-1,2026-03-01,2026-03-31,Basic Charge,Normal,Monthly,55.00\n"
	result, err := importer.ImportCSV(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("imported = %d, want 1", result.Imported)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected row error recorded")
	}
}
