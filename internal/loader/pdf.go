package loader

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// readPDFPages extracts the plain text of every page. Page numbers are
// 1-based; blank pages are kept so numbering matches the viewer.
func readPDFPages(path string) ([]domain.Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]domain.Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	return pages, nil
}
