package convert

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// validatePDF checks that data is a readable PDF with at least one page.
// Conversion services occasionally return HTML error pages or truncated
// bodies with a 200 status; those must count as malformed responses.
func validatePDF(data []byte) (err error) {
	// The pdf package panics on some malformed inputs rather than returning
	// an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("not a readable PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("not a readable PDF: %w", err)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("PDF has no pages")
	}
	return nil
}
