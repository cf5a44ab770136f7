package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	capture "meterscope/internal/capture/domain"
	capturepg "meterscope/internal/capture/infrastructure/postgres"
)

// BuildRunPDF renders a minimal PDF summary of a capture run.
func BuildRunPDF(run *capturepg.Run, results []capture.MeterResult) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Chart Capture Run")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", run.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", run.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Created: %s", run.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if run.StartedAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Started: %s", run.StartedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	if run.EndedAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Ended: %s", run.EndedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	if run.Error != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Error: %s", run.Error))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Charts captured: %d", run.TotalSuccess))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Charts failed: %d", run.TotalFailed))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Cancelled: %t", run.Cancelled))
	pdf.Ln(8)

	// Meter results table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Meter", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Attempted", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Captured", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Failed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Failed Metrics", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, result := range results {
		pdf.CellFormat(35, 6, result.MeterNumber, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", result.ChartsAttempted), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", result.ChartsSuccessful), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", result.ChartsFailed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(70, 6, strings.Join(result.FailedMetrics, ", "), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunXLSX renders a minimal XLSX summary of a capture run.
func BuildRunXLSX(run *capturepg.Run, results []capture.MeterResult) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	metersSheet := "meters"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(metersSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Chart Capture Run")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", run.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Status")
	_ = f.SetCellValue(summarySheet, "B4", run.Status)
	_ = f.SetCellValue(summarySheet, "A5", "Charts captured")
	_ = f.SetCellValue(summarySheet, "B5", run.TotalSuccess)
	_ = f.SetCellValue(summarySheet, "A6", "Charts failed")
	_ = f.SetCellValue(summarySheet, "B6", run.TotalFailed)
	_ = f.SetCellValue(summarySheet, "A7", "Cancelled")
	_ = f.SetCellValue(summarySheet, "B7", run.Cancelled)
	if run.StartedAt != nil {
		_ = f.SetCellValue(summarySheet, "A8", "Started")
		_ = f.SetCellValue(summarySheet, "B8", run.StartedAt.Format(time.RFC3339))
	}
	if run.EndedAt != nil {
		_ = f.SetCellValue(summarySheet, "A9", "Ended")
		_ = f.SetCellValue(summarySheet, "B9", run.EndedAt.Format(time.RFC3339))
	}

	_ = f.SetCellValue(metersSheet, "A1", "Meter")
	_ = f.SetCellValue(metersSheet, "B1", "Attempted")
	_ = f.SetCellValue(metersSheet, "C1", "Captured")
	_ = f.SetCellValue(metersSheet, "D1", "Failed")
	_ = f.SetCellValue(metersSheet, "E1", "Failed Metrics")
	_ = f.SetCellValue(metersSheet, "F1", "Duration (ms)")
	for i, result := range results {
		row := i + 2
		_ = f.SetCellValue(metersSheet, fmt.Sprintf("A%d", row), result.MeterNumber)
		_ = f.SetCellValue(metersSheet, fmt.Sprintf("B%d", row), result.ChartsAttempted)
		_ = f.SetCellValue(metersSheet, fmt.Sprintf("C%d", row), result.ChartsSuccessful)
		_ = f.SetCellValue(metersSheet, fmt.Sprintf("D%d", row), result.ChartsFailed)
		_ = f.SetCellValue(metersSheet, fmt.Sprintf("E%d", row), strings.Join(result.FailedMetrics, ", "))
		_ = f.SetCellValue(metersSheet, fmt.Sprintf("F%d", row), result.DurationMs)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
