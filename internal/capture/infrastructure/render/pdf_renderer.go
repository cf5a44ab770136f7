package render

import (
	"bytes"
	"time"

	"github.com/jung-kurt/gofpdf"

	capture "meterscope/internal/capture/domain"
)

// Chart layout in millimetres on an A4 landscape page.
const (
	chartLeft   = 20.0
	chartTop    = 30.0
	chartWidth  = 250.0
	chartHeight = 140.0
)

type seriesStyle struct {
	label   string
	r, g, b int
	value   func(capture.ChartPoint) *float64
}

var chartSeries = []seriesStyle{
	{label: "Billed", r: 31, g: 119, b: 180, value: func(p capture.ChartPoint) *float64 { return p.DocumentAmount }},
	{label: "Reconciled", r: 214, g: 39, b: 40, value: func(p capture.ChartPoint) *float64 { return p.ReconciledAmount }},
	{label: "Reading", r: 44, g: 160, b: 44, value: func(p capture.ChartPoint) *float64 { return p.MeterReading }},
}

// PDFRenderer renders a capture chart as a single-page PDF. It never fails:
// empty or unusable input, or any internal error, yields nil, which the
// scheduler reports as a render failure.
type PDFRenderer struct{}

// NewPDFRenderer constructs a renderer.
func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

// Render implements the capture renderer contract.
func (r *PDFRenderer) Render(title, unit string, series []capture.ChartPoint) (out []byte) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	if len(series) == 0 {
		return nil
	}
	low, high, any := valueBounds(series)
	if !any {
		return nil
	}
	if high == low {
		high = low + 1
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	// Fixed creation date keeps output byte-identical for identical input.
	pdf.SetCreationDate(time.Unix(0, 0).UTC())
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)

	// Axes.
	pdf.SetDrawColor(60, 60, 60)
	pdf.Line(chartLeft, chartTop, chartLeft, chartTop+chartHeight)
	pdf.Line(chartLeft, chartTop+chartHeight, chartLeft+chartWidth, chartTop+chartHeight)
	pdf.TransformBegin()
	pdf.TransformRotate(90, chartLeft-10, chartTop+chartHeight/2)
	pdf.Text(chartLeft-10, chartTop+chartHeight/2, unit)
	pdf.TransformEnd()

	step := chartWidth
	if len(series) > 1 {
		step = chartWidth / float64(len(series)-1)
	}
	plotX := func(i int) float64 {
		if len(series) == 1 {
			return chartLeft + chartWidth/2
		}
		return chartLeft + float64(i)*step
	}
	plotY := func(value float64) float64 {
		scaled := (value - low) / (high - low)
		return chartTop + chartHeight - scaled*chartHeight
	}

	// Period labels along the x axis.
	for i, point := range series {
		pdf.Text(plotX(i)-6, chartTop+chartHeight+6, point.PeriodLabel)
	}

	// One polyline per series; nil values leave gaps.
	for seriesIndex, style := range chartSeries {
		pdf.SetDrawColor(style.r, style.g, style.b)
		pdf.SetFillColor(style.r, style.g, style.b)
		var prevX, prevY float64
		havePrev := false
		for i, point := range series {
			value := style.value(point)
			if value == nil {
				havePrev = false
				continue
			}
			x, y := plotX(i), plotY(*value)
			pdf.Circle(x, y, 0.8, "F")
			if havePrev {
				pdf.Line(prevX, prevY, x, y)
			}
			prevX, prevY = x, y
			havePrev = true
		}

		// Legend swatch.
		legendY := chartTop + float64(seriesIndex)*6
		pdf.Rect(chartLeft+chartWidth+4, legendY, 4, 4, "F")
		pdf.SetTextColor(0, 0, 0)
		pdf.Text(chartLeft+chartWidth+10, legendY+3.5, style.label)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

func valueBounds(series []capture.ChartPoint) (low, high float64, any bool) {
	consider := func(value *float64) {
		if value == nil {
			return
		}
		if !any || *value < low {
			low = *value
		}
		if !any || *value > high {
			high = *value
		}
		any = true
	}
	for _, point := range series {
		consider(point.DocumentAmount)
		consider(point.ReconciledAmount)
		consider(point.MeterReading)
	}
	return low, high, any
}
