package export

import (
	"bytes"
	"fmt"
	"strings"
)

// Dataset defines tabular export content. Rows are positional and must
// have len(Headers) cells.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// CSVExporter renders Dataset records into CSV bytes with every field quoted.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset. A non-empty Title is
// written as a single-field first line.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if data.Title != "" {
		writeRecord(buf, []string{data.Title})
	}
	writeRecord(buf, data.Headers)
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return nil, fmt.Errorf("write csv row %d: expected %d fields, got %d", i, len(data.Headers), len(row))
		}
		writeRecord(buf, row)
	}
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(Quote(field))
	}
	buf.WriteByte('\n')
}

// Quote wraps a CSV field in double quotes, doubling embedded quotes.
func Quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
