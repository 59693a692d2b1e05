package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// DefaultCSVColumn is the complaint description column of NHTSA exports.
const DefaultCSVColumn = "CDESCR"

// ReadCSV returns one page per data record, numbered by 0-based record
// index so highlights can address the row again. Records with an empty
// column are skipped without renumbering.
func ReadCSV(r io.Reader, column string) ([]domain.Page, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := -1
	for i, h := range head {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("csv column %q not found", column)
	}

	var pages []domain.Page
	for idx := 0; ; idx++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record %d: %w", idx, err)
		}
		if col >= len(rec) || strings.TrimSpace(rec[col]) == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: idx, Text: rec[col]})
	}
	return pages, nil
}
