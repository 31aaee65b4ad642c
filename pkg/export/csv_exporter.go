package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column describes one field of an exported table. Weight sets the share of the page
// width in PDF output; Wrap lets long text flow over several lines.
type Column struct {
	Key    string
	Title  string
	Weight float64
	Wrap   bool
}

// Dataset is a titled table of rows keyed by column key.
type Dataset struct {
	Title   string
	Summary []string
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) validate(format string) error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s export requires at least one column", format)
	}
	for _, column := range d.Columns {
		if column.Key == "" {
			return fmt.Errorf("%s export: column without key", format)
		}
	}
	return nil
}

// CSVExporter renders datasets as CSV with column keys as the header row.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset. Title and summary are PDF only.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("csv"); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	header := make([]string, len(data.Columns))
	for i, column := range data.Columns {
		header[i] = column.Key
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(data.Columns))
	for _, row := range data.Rows {
		for i, column := range data.Columns {
			record[i] = row[column.Key]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
