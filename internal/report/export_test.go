package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	capture "meterscope/internal/capture/domain"
	capturepg "meterscope/internal/capture/infrastructure/postgres"
)

func sampleRun() (*capturepg.Run, []capture.MeterResult) {
	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	ended := started.Add(3 * time.Minute)
	run := &capturepg.Run{
		ID:           "run-1",
		Status:       capturepg.RunStatusSucceeded,
		TotalSuccess: 10,
		TotalFailed:  2,
		CreatedAt:    started,
		StartedAt:    &started,
		EndedAt:      &ended,
	}
	results := []capture.MeterResult{
		{MeterNumber: "MTR-001", MeterID: "m-1", ChartsAttempted: 6, ChartsSuccessful: 6, DurationMs: 1800},
		{MeterNumber: "MTR-002", MeterID: "m-2", ChartsAttempted: 6, ChartsSuccessful: 4, ChartsFailed: 2,
			FailedMetrics: []string{"kVA Charge", "kWh Charge"}, DurationMs: 2200},
	}
	return run, results
}

func TestBuildRunPDF(t *testing.T) {
	run, results := sampleRun()
	payload, err := BuildRunPDF(run, results)
	if err != nil {
		t.Fatalf("BuildRunPDF: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("output is not a PDF (%d bytes)", len(payload))
	}
}

func TestBuildRunXLSX(t *testing.T) {
	run, results := sampleRun()
	payload, err := BuildRunXLSX(run, results)
	if err != nil {
		t.Fatalf("BuildRunXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	runID, err := f.GetCellValue("summary", "B3")
	if err != nil {
		t.Fatalf("read summary cell: %v", err)
	}
	if runID != "run-1" {
		t.Fatalf("run id cell = %q", runID)
	}
	meter, err := f.GetCellValue("meters", "A3")
	if err != nil {
		t.Fatalf("read meters cell: %v", err)
	}
	if meter != "MTR-002" {
		t.Fatalf("meter cell = %q", meter)
	}
	failed, err := f.GetCellValue("meters", "E3")
	if err != nil {
		t.Fatalf("read failed metrics cell: %v", err)
	}
	if failed != "kVA Charge, kWh Charge" {
		t.Fatalf("failed metrics cell = %q", failed)
	}
}
