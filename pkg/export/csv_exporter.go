package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(record(data.Headers, row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderReport flattens every section into one table, prefixing each row with
// the section heading. Sections must share the same headers.
func (e *CSVExporter) RenderReport(report Report) ([]byte, error) {
	if len(report.Sections) == 0 {
		return nil, fmt.Errorf("csv report requires at least one section")
	}
	headers := report.Sections[0].Data.Headers
	flat := Dataset{Headers: append([]string{"Section"}, headers...)}
	for _, section := range report.Sections {
		if len(section.Data.Headers) != len(headers) {
			return nil, fmt.Errorf("section %q has %d columns, want %d", section.Heading, len(section.Data.Headers), len(headers))
		}
		for _, row := range section.Data.Rows {
			out := make(map[string]string, len(row)+1)
			for k, v := range row {
				out[k] = v
			}
			out["Section"] = section.Heading
			flat.Rows = append(flat.Rows, out)
		}
	}
	return e.Render(flat)
}

func record(headers []string, row map[string]string) []string {
	out := make([]string, len(headers))
	for i, header := range headers {
		out[i] = row[header]
	}
	return out
}
