package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pageWidth = 190.0

// PDFExporter renders reports into A4 PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderReport writes the title block, one bordered table per section and the summary lines.
func (e *PDFExporter) RenderReport(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(report.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", 10)
	for _, line := range report.Lines {
		pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range report.Sections {
		if len(section.Data.Headers) == 0 {
			return nil, fmt.Errorf("section %q requires at least one header", section.Heading)
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(section.Heading), "", 1, "L", false, 0, "")

		colWidth := pageWidth / float64(len(section.Data.Headers))
		pdf.SetFont("Arial", "B", 9)
		for _, header := range section.Data.Headers {
			pdf.CellFormat(colWidth, 7, tr(header), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range section.Data.Rows {
			for _, value := range record(section.Data.Headers, row) {
				pdf.CellFormat(colWidth, 6, tr(value), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		if section.Footer != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.CellFormat(0, 6, tr(section.Footer), "", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	if len(report.Summary) > 0 {
		pdf.SetFont("Arial", "B", 10)
		for _, line := range report.Summary {
			pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
