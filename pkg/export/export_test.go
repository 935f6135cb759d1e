package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	headers := []string{"Activity", "Date", "Approved"}
	return Report{
		Title: "Complementary hours",
		Lines: []string{"Student: Ana"},
		Sections: []Section{
			{Heading: "Research", Data: Dataset{Headers: headers, Rows: []map[string]string{{"Activity": "Lab", "Date": "2024-03-01", "Approved": "8"}}}, Footer: "8 of 10 h"},
			{Heading: "Extension", Data: Dataset{Headers: headers, Rows: []map[string]string{{"Activity": "Fair", "Date": "2024-04-02", "Approved": "4"}}}},
		},
		Summary: []string{"Total: 12 / 100 h"},
	}
}

func TestCSVRenderReportFlattensSections(t *testing.T) {
	out, err := NewCSVExporter().RenderReport(sampleReport())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Section,Activity,Date,Approved", lines[0])
	assert.Equal(t, "Research,Lab,2024-03-01,8", lines[1])
	assert.Equal(t, "Extension,Fair,2024-04-02,4", lines[2])
}

func TestCSVRenderReportRejectsMismatchedSections(t *testing.T) {
	report := sampleReport()
	report.Sections[1].Data.Headers = []string{"Activity"}
	_, err := NewCSVExporter().RenderReport(report)
	assert.Error(t, err)
}

func TestPDFRenderReport(t *testing.T) {
	out, err := NewPDFExporter().RenderReport(sampleReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
