package citation

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the rendering family of a source document.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindCSV   Kind = "csv"
	KindOther Kind = "other"
)

// KindOf derives the kind from a file extension.
func KindOf(fileName string) Kind {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return KindPDF
	case ".csv":
		return KindCSV
	default:
		return KindOther
	}
}

// Origin locates a passage in its source: a 1-based page for PDFs or a
// 0-based record index for CSV files.
type Origin struct {
	FileName string `json:"file_name"`
	Location int    `json:"location"`
}

// Passage is one ranked retrieval result as shown to the model.
type Passage struct {
	Text   string `json:"text"`
	Origin Origin `json:"origin"`
}

// Phrase is the text a renderer searches for on a page or row.
type Phrase struct {
	Location int    `json:"location"`
	Text     string `json:"text"`
}

// Instruction tells a renderer which locations of one file to mark.
type Instruction struct {
	FileName  string   `json:"file_name"`
	Kind      Kind     `json:"kind"`
	Locations []int    `json:"locations"`
	Phrases   []Phrase `json:"phrases"`
}

// Select returns the passages whose index was validated, in rank order.
func Select(indices []int, passages []Passage) []Passage {
	want := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		want[i] = struct{}{}
	}
	var out []Passage
	for i, p := range passages {
		if _, ok := want[i]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Map groups validated passages per source file. Instructions follow the
// order in which files first appear in the ranked list.
func Map(indices []int, passages []Passage) []Instruction {
	var out []Instruction
	byFile := make(map[string]int)
	seenLoc := make(map[string]map[int]struct{})
	for _, p := range Select(indices, passages) {
		name := p.Origin.FileName
		pos, ok := byFile[name]
		if !ok {
			pos = len(out)
			byFile[name] = pos
			seenLoc[name] = make(map[int]struct{})
			out = append(out, Instruction{FileName: name, Kind: KindOf(name)})
		}
		ins := &out[pos]
		if _, dup := seenLoc[name][p.Origin.Location]; !dup {
			seenLoc[name][p.Origin.Location] = struct{}{}
			ins.Locations = append(ins.Locations, p.Origin.Location)
		}
		ins.Phrases = append(ins.Phrases, Phrase{Location: p.Origin.Location, Text: PhraseText(p.Text)})
	}
	for i := range out {
		sort.Ints(out[i].Locations)
	}
	return out
}

// PhraseText removes the line breaks introduced by text extraction while
// keeping the original casing for exact phrase search.
func PhraseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitByKind separates PDF and CSV instructions. Other kinds are dropped.
func SplitByKind(ins []Instruction) (pdf, csv []Instruction) {
	for _, in := range ins {
		switch in.Kind {
		case KindPDF:
			pdf = append(pdf, in)
		case KindCSV:
			csv = append(csv, in)
		}
	}
	return pdf, csv
}
