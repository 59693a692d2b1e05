package render

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
)

// HighlightColor fills highlighted rows.
const HighlightColor = "FFFF00"

// spreadsheet copies the CSV source into a workbook and fills the cited
// records. Record i sits on sheet row i+2, below the header.
func (r *Renderer) spreadsheet(in citation.Instruction, src string) (Document, error) {
	records, err := readRecords(src)
	if err != nil {
		return Document{}, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	width := 1
	for i, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return Document{}, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return Document{}, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{HighlightColor}, Pattern: 1},
	})
	if err != nil {
		return Document{}, err
	}
	rows := make([]int, 0, len(in.Locations))
	for _, rec := range in.Locations {
		if rec < 0 || rec+1 >= len(records) {
			continue
		}
		first, _ := excelize.CoordinatesToCellName(1, rec+2)
		last, _ := excelize.CoordinatesToCellName(width, rec+2)
		if err := f.SetCellStyle(sheet, first, last, style); err != nil {
			return Document{}, fmt.Errorf("style row %d: %w", rec, err)
		}
		rows = append(rows, rec)
	}

	name := OutputName(in.FileName, "_highlighted.xlsx")
	if err := f.SaveAs(filepath.Join(r.outputDir, name)); err != nil {
		return Document{}, err
	}
	return Document{Source: in.FileName, FileName: name, Kind: citation.KindCSV, Locations: rows}, nil
}

func readRecords(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var out [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, errors.New("empty csv")
	}
	return out, nil
}
