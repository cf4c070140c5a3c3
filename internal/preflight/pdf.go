package preflight

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Result describes a successfully parsed upload.
type Result struct {
	PageCount int
}

// CheckPDF verifies that the bytes parse as a PDF before the upload is
// accepted, so the pipeline never receives a document it cannot open.
func CheckPDF(data []byte) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("file is not a readable PDF: %w", err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return Result{}, fmt.Errorf("PDF has no pages")
	}
	return Result{PageCount: pages}, nil
}
