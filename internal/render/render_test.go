package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func resolverFor(paths map[string]string) Resolver {
	return func(name string) (string, bool) {
		p, ok := paths[name]
		return p, ok
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "complaints_highlighted.xlsx", OutputName("complaints.csv", "_highlighted.xlsx"))
	assert.Equal(t, "TSB 21-001_highlights.json", OutputName("TSB 21-001.pdf", "_highlights.json"))
}

func TestRender(t *testing.T) {
	src := t.TempDir()
	csvPath := writeFile(t, src, "complaints.csv", "\ufeffODINO,CDESCR\n1,Brakes squeal\n2,Engine stalls\n3,Airbag light on\n")
	pdfPath := writeFile(t, src, "manual.pdf", "%PDF-1.4")

	t.Run("Spreadsheet fills cited rows", func(t *testing.T) {
		out := t.TempDir()
		r := New(out, nil)
		docs, err := r.Render([]citation.Instruction{
			{FileName: "complaints.csv", Kind: citation.KindCSV, Locations: []int{0, 2, 7}},
		}, resolverFor(map[string]string{"complaints.csv": csvPath}))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "complaints_highlighted.xlsx", docs[0].FileName)
		assert.Equal(t, []int{0, 2}, docs[0].Locations, "Expected rows past the end to be skipped")

		f, err := excelize.OpenFile(filepath.Join(out, docs[0].FileName))
		require.NoError(t, err)
		defer f.Close()
		sheet := f.GetSheetName(0)
		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"ODINO", "CDESCR"}, rows[0])
		assert.Equal(t, "Brakes squeal", rows[1][1])

		for cell, want := range map[string]bool{"A1": false, "A2": true, "B2": true, "B3": false, "B4": true} {
			id, err := f.GetCellStyle(sheet, cell)
			require.NoError(t, err)
			if want {
				assert.NotZero(t, id, "Expected %s to be highlighted", cell)
			} else {
				assert.Zero(t, id, "Expected %s to keep the default style", cell)
			}
		}
	})

	t.Run("Unreadable PDF falls back to the phrase manifest", func(t *testing.T) {
		out := t.TempDir()
		r := New(out, nil)
		docs, err := r.Render([]citation.Instruction{{
			FileName:  "manual.pdf",
			Kind:      citation.KindPDF,
			Locations: []int{3, 9},
			Phrases: []citation.Phrase{
				{Location: 9, Text: "Check tire pressure."},
				{Location: 3, Text: "Replace the pads."},
				{Location: 9, Text: "Rotate tires."},
			},
		}}, resolverFor(map[string]string{"manual.pdf": pdfPath}))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, []int{3, 9}, docs[0].Locations)

		data, err := os.ReadFile(filepath.Join(out, "manual_highlights.json"))
		require.NoError(t, err)
		var m Manifest
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, pdfPath, m.Source)
		assert.Equal(t, []ManifestPage{
			{Page: 3, Phrases: []string{"Replace the pads."}},
			{Page: 9, Phrases: []string{"Check tire pressure.", "Rotate tires."}},
		}, m.Pages)
	})

	t.Run("PDF pages get highlight annotations", func(t *testing.T) {
		manual := writePDF(t, src, "brakes.pdf",
			"BT /F1 12 Tf 72 720 Td (Replace the brake pads every) Tj 0 -14 Td (20000 miles or sooner.) Tj ET")
		out := t.TempDir()
		docs, err := New(out, nil).Render([]citation.Instruction{{
			FileName:  "brakes.pdf",
			Kind:      citation.KindPDF,
			Locations: []int{1},
			Phrases:   []citation.Phrase{{Location: 1, Text: "brake pads every 20000 miles"}},
		}}, resolverFor(map[string]string{"brakes.pdf": manual}))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "brakes_highlighted.pdf", docs[0].FileName)
		assert.Equal(t, []int{1}, docs[0].Locations)
		assert.NoFileExists(t, filepath.Join(out, "brakes_highlights.json"))

		f, rd, err := pdf.Open(filepath.Join(out, docs[0].FileName))
		require.NoError(t, err)
		defer f.Close()
		annots := rd.Page(1).V.Key("Annots")
		require.Equal(t, 2, annots.Len(), "Expected one highlight per covered line")
		assert.Equal(t, "Highlight", annots.Index(0).Key("Subtype").Name())
	})

	t.Run("PDF without the phrase falls back to the manifest", func(t *testing.T) {
		manual := writePDF(t, src, "tires.pdf", "BT /F1 12 Tf 72 720 Td (Check tire pressure monthly.) Tj ET")
		out := t.TempDir()
		docs, err := New(out, nil).Render([]citation.Instruction{{
			FileName:  "tires.pdf",
			Kind:      citation.KindPDF,
			Locations: []int{1},
			Phrases:   []citation.Phrase{{Location: 1, Text: "Replace the wiper blades."}},
		}}, resolverFor(map[string]string{"tires.pdf": manual}))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "tires_highlights.json", docs[0].FileName)
		assert.NoFileExists(t, filepath.Join(out, "tires_highlighted.pdf"))
	})

	t.Run("Failures do not stop other documents", func(t *testing.T) {
		out := t.TempDir()
		r := New(out, nil)
		docs, err := r.Render([]citation.Instruction{
			{FileName: "missing.csv", Kind: citation.KindCSV, Locations: []int{0}},
			{FileName: "manual.pdf", Kind: citation.KindPDF, Locations: []int{1}, Phrases: []citation.Phrase{{Location: 1, Text: "x"}}},
		}, resolverFor(map[string]string{"manual.pdf": pdfPath}))
		assert.Error(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "manual_highlights.json", docs[0].FileName)
	})

	t.Run("Other kinds and empty input", func(t *testing.T) {
		r := New(t.TempDir(), nil)
		docs, err := r.Render(nil, resolverFor(nil))
		require.NoError(t, err)
		assert.Empty(t, docs)

		docs, err = r.Render([]citation.Instruction{{FileName: "notes.txt", Kind: citation.KindOther, Locations: []int{1}}}, resolverFor(nil))
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

// writePDF writes a one page PDF whose content stream is content, using
// Helvetica with fixed 500 unit glyph widths.
func writePDF(t *testing.T, dir, name, content string) string {
	t.Helper()
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [" +
			strings.TrimSpace(strings.Repeat("500 ", 95)) + "] >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return writeFile(t, dir, name, b.String())
}

func glyphs(x, y float64, s string) []pdf.Text {
	out := make([]pdf.Text, 0, len(s))
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: 10, X: x, Y: y, W: 5, S: string(r)})
		x += 5
	}
	return out
}

func TestPhraseBoxes(t *testing.T) {
	page := append(glyphs(100, 700, "Bleed the brake"), glyphs(100, 688, "lines twice.")...)

	t.Run("Phrase across lines gives one box per line", func(t *testing.T) {
		boxes := PhraseBoxes(page, "the BRAKE\nlines")
		require.Len(t, boxes, 2)
		assert.Equal(t, Box{LLX: 130, LLY: 697.5, URX: 175, URY: 708.5}, boxes[0])
		assert.Equal(t, Box{LLX: 100, LLY: 685.5, URX: 125, URY: 696.5}, boxes[1])
	})

	t.Run("Every occurrence is boxed", func(t *testing.T) {
		assert.Len(t, PhraseBoxes(glyphs(0, 10, "pad and pad"), "pad"), 2)
	})

	t.Run("Sentences are searched when the whole phrase is absent", func(t *testing.T) {
		boxes := PhraseBoxes(page, "Bleed the brake. Then top up the reservoir.")
		require.Len(t, boxes, 1)
		assert.Equal(t, 100.0, boxes[0].LLX)
	})

	t.Run("Missing phrase", func(t *testing.T) {
		assert.Empty(t, PhraseBoxes(page, "coolant"))
		assert.Empty(t, PhraseBoxes(page, "  "))
	})
}
