package export

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Section is one titled table inside a report, e.g. the activities of a category.
type Section struct {
	Heading string
	Data    Dataset
	Footer  string
}

// Report groups sections under a title. Lines are printed below the title and
// Summary after the last section.
type Report struct {
	Title    string
	Lines    []string
	Sections []Section
	Summary  []string
}
