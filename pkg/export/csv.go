package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVRenderer writes RFC 4180 CSV with a header line.
type CSVRenderer struct{}

// NewCSVRenderer builds a CSV renderer.
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// Format implements Renderer.
func (r *CSVRenderer) Format() Format { return FormatCSV }

// ContentType implements Renderer.
func (r *CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

// Render produces CSV bytes. The title is not part of CSV output.
func (r *CSVRenderer) Render(table Table) ([]byte, error) {
	if err := requireHeaders(table, FormatCSV); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(table.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range table.Rows {
		if err := writer.Write(cells(row, len(table.Headers))); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
