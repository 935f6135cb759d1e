package dto

// ReportFormat selects the student report encoding.
type ReportFormat string

const (
	ReportFormatPDF ReportFormat = "pdf"
	ReportFormatCSV ReportFormat = "csv"
)

// ContentType returns the MIME type served for the format.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatCSV {
		return "text/csv"
	}
	return "application/pdf"
}

// ReportFile is a rendered report ready to be streamed.
type ReportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
