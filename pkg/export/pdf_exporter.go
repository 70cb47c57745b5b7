package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin     = 10.0
	wideColumns    = 2
	wideColumnMin  = 30.0
	landscapeAfter = 6
)

// PDFExporter renders datasets into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
// The first two columns (identifier and name) get extra width; wide tables
// switch to landscape.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation := "P"
	if len(data.Headers) > landscapeAfter {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pageMargin, 15, pageMargin)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, data.Title, "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pageWidth, _ := pdf.GetPageSize()
	widths := columnWidths(pageWidth-2*pageMargin, len(data.Headers))

	pdf.SetFont("Arial", "B", 9)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for i := range data.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			align := ""
			if i >= wideColumns {
				align = "C"
			}
			pdf.CellFormat(widths[i], 7, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(total float64, n int) []float64 {
	widths := make([]float64, n)
	if n <= wideColumns {
		for i := range widths {
			widths[i] = total / float64(n)
		}
		return widths
	}
	even := total / float64(n)
	wide := even * 1.6
	if wide < wideColumnMin {
		wide = wideColumnMin
	}
	rest := (total - wide*wideColumns) / float64(n-wideColumns)
	if rest <= 0 {
		rest = even
		wide = even
	}
	for i := range widths {
		if i < wideColumns {
			widths[i] = wide
		} else {
			widths[i] = rest
		}
	}
	return widths
}
