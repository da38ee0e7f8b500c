package model

// --- Print Job Structures ---

type JobFormat string

const (
	JobFormatHTML  JobFormat = "html"
	JobFormatPDF   JobFormat = "pdf"
	JobFormatImage JobFormat = "image"
)

// PrintJob is the payload of a print_job message.
//
// HTML jobs carry their pages either in Pages or, base64+gzip compressed as a
// JSON array, in Compressed. PDF and image jobs carry the file bytes base64
// encoded in Data.
type PrintJob struct {
	ID          string      `json:"id"`
	Format      JobFormat   `json:"format"`
	Pages       []string    `json:"pages,omitempty"`
	Compressed  string      `json:"compressed,omitempty"`
	Data        string      `json:"data,omitempty"`
	Copies      int         `json:"copies,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
}

// CopyCount returns the number of copies to print, at least one.
func (j PrintJob) CopyCount() int {
	if j.Copies < 1 {
		return 1
	}
	return j.Copies
}
