package reports

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Preview is a quick local summary of a downloaded report file.
type Preview struct {
	Pages     int
	FirstPage string
}

// previewChars caps how much first-page text a preview carries.
const previewChars = 1200

// PreviewPDF opens a downloaded report and returns its page count and the
// plain text of the first page. It also serves as a cheap validity check
// after download: a truncated or non-PDF body fails here.
func PreviewPDF(path string) (Preview, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Preview{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pv := Preview{Pages: r.NumPage()}
	if pv.Pages == 0 {
		return pv, fmt.Errorf("pdf has no pages")
	}

	page := r.Page(1)
	if page.V.IsNull() {
		return pv, nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		// Partial previews are fine; the page count already proves the file
		// parsed.
		return pv, nil
	}
	pv.FirstPage = truncateText(text, previewChars)
	return pv, nil
}

// ExtractText returns the plain text of the whole report, used by
// "reports preview --full".
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return buf.String(), nil
}

func truncateText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
