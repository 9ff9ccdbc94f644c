package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter writes a sheet as a header line of column keys followed by its rows. The
// heading block is left out so spreadsheets can import the file as-is.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes sheet as CSV.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if err := sheet.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	keys := make([]string, len(sheet.Columns))
	for i, col := range sheet.Columns {
		keys[i] = col.Key
	}
	if err := writer.Write(keys); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(sheet.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
