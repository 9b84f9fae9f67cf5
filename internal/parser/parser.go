package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"pdf-rag/internal/models"

	"github.com/ledongthuc/pdf"
)

// Extractor turns raw PDF bytes into page text.
type Extractor interface {
	ExtractPages(data []byte) ([]models.Page, int, error)
	PageCount(data []byte) (int, error)
}

// PDFExtractor reads PDFs with ledongthuc/pdf.
type PDFExtractor struct{}

// IsPDF reports whether filename carries a .pdf extension.
func IsPDF(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

// ExtractPages returns the non-empty pages of the document, 1-indexed and
// trimmed, together with the total page count.
func (PDFExtractor) ExtractPages(data []byte) (pages []models.Page, numPages int, err error) {
	reader, err := openPDF(data)
	if err != nil {
		return nil, 0, err
	}
	// the pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			pages, numPages, err = nil, 0, fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	numPages = reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	return pages, numPages, nil
}

func (PDFExtractor) PageCount(data []byte) (n int, err error) {
	reader, err := openPDF(data)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf")
	}
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("failed to open pdf: %v", rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return r, nil
}
