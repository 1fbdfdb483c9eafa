package export

import "fmt"

// Format names a rendered document type.
type Format string

// Supported formats.
const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Table is an ordered tabular document. Every row should have len(Headers) cells; missing cells render empty.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Renderer turns a Table into bytes of one format.
type Renderer interface {
	Format() Format
	ContentType() string
	Render(table Table) ([]byte, error)
}

func cells(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func requireHeaders(table Table, format Format) error {
	if len(table.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	return nil
}
