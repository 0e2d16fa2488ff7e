package rag

import (
	"fmt"

	"pdfchat/internal/pkg/pdfextract"
)

// Page is the text of one source page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

type Extractor interface {
	Extract(data []byte) ([]Page, error)
}

// PDFExtractor reads pages with the pdfextract package.
type PDFExtractor struct{}

func (PDFExtractor) Extract(data []byte) ([]Page, error) {
	raw, err := pdfextract.Pages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	pages := make([]Page, len(raw))
	for i, p := range raw {
		pages[i] = Page{Number: p.Number, Text: p.Text}
	}
	return pages, nil
}
