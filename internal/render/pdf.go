package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
)

var (
	errNoPhraseFound = errors.New("no cited phrase found on the cited pages")

	phraseSentenceRe = regexp.MustCompile(`[^.!?;]+`)
	highlightYellow  = color.SimpleColor{R: 1, G: 1, B: 0}
)

// Box is a highlight rectangle in PDF user space (origin bottom left).
type Box struct {
	LLX, LLY, URX, URY float64
}

// Manifest lists the phrases a PDF annotator should search for on each page.
type Manifest struct {
	Source string         `json:"source"`
	Pages  []ManifestPage `json:"pages"`
}

// ManifestPage is one 1-based page with its phrases in rank order.
type ManifestPage struct {
	Page    int      `json:"page"`
	Phrases []string `json:"phrases"`
}

// highlightPDF writes <name>_highlighted.pdf with one highlight annotation
// per line of every cited phrase found. When the source cannot be read or
// annotated, or no phrase is found, the phrase manifest is written instead.
func (r *Renderer) highlightPDF(in citation.Instruction, src string) (Document, error) {
	boxes, err := locatePhrases(src, in.Phrases)
	if err == nil && len(boxes) == 0 {
		err = errNoPhraseFound
	}
	if err == nil {
		name := OutputName(in.FileName, "_highlighted.pdf")
		if err = annotate(src, filepath.Join(r.outputDir, name), boxes); err == nil {
			return Document{Source: in.FileName, FileName: name, Kind: citation.KindPDF, Locations: in.Locations}, nil
		}
	}
	r.log.Warn("pdf not annotated, writing highlight manifest",
		zap.String("file", in.FileName), zap.Error(err))
	return r.pdfManifest(in, src)
}

// locatePhrases maps each phrase to boxes on its page. Pages are read once.
func locatePhrases(src string, phrases []citation.Phrase) (boxes map[int][]Box, err error) {
	f, rd, err := pdf.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	// The content parser panics on malformed streams.
	defer func() {
		if p := recover(); p != nil {
			boxes, err = nil, fmt.Errorf("read pdf content: %v", p)
		}
	}()

	glyphs := make(map[int][]pdf.Text)
	boxes = make(map[int][]Box)
	for _, ph := range phrases {
		if ph.Location < 1 || ph.Location > rd.NumPage() {
			continue
		}
		texts, ok := glyphs[ph.Location]
		if !ok {
			page := rd.Page(ph.Location)
			if !page.V.IsNull() {
				texts = page.Content().Text
			}
			glyphs[ph.Location] = texts
		}
		if found := PhraseBoxes(texts, ph.Text); len(found) > 0 {
			boxes[ph.Location] = append(boxes[ph.Location], found...)
		}
	}
	return boxes, nil
}

// PhraseBoxes returns one box per text line covered by each occurrence of
// phrase. Matching ignores case and whitespace since extracted glyphs rarely
// carry the spaces of the plain text. When the whole phrase is absent, its
// sentences are searched separately.
func PhraseBoxes(texts []pdf.Text, phrase string) []Box {
	stream, owner := glyphRunes(texts)
	if out := findBoxes(texts, stream, owner, compact(phrase)); len(out) > 0 {
		return out
	}
	var out []Box
	for _, s := range phraseSentenceRe.FindAllString(phrase, -1) {
		if len(strings.Fields(s)) < 3 {
			continue
		}
		out = append(out, findBoxes(texts, stream, owner, compact(s))...)
	}
	return out
}

func glyphRunes(texts []pdf.Text) ([]rune, []int) {
	var stream []rune
	var owner []int
	for i, t := range texts {
		for _, r := range strings.ToLower(t.S) {
			if unicode.IsSpace(r) {
				continue
			}
			stream = append(stream, r)
			owner = append(owner, i)
		}
	}
	return stream, owner
}

func compact(s string) []rune {
	var out []rune
	for _, r := range strings.ToLower(s) {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}

func findBoxes(texts []pdf.Text, stream []rune, owner []int, target []rune) []Box {
	if len(target) == 0 {
		return nil
	}
	var out []Box
	for from := 0; from+len(target) <= len(stream); {
		at := indexRunes(stream[from:], target)
		if at < 0 {
			break
		}
		start := from + at
		end := start + len(target) - 1
		out = append(out, lineBoxes(texts[owner[start]:owner[end]+1])...)
		from = end + 1
	}
	return out
}

func indexRunes(s, sub []rune) int {
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// lineBoxes merges consecutive glyphs sharing a baseline into one box.
func lineBoxes(texts []pdf.Text) []Box {
	var out []Box
	var cur Box
	var baseline, size float64
	open := false
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		fs := math.Max(t.FontSize, 1)
		if open && math.Abs(t.Y-baseline) > 0.5*math.Max(size, fs) {
			out = append(out, cur)
			open = false
		}
		lo, hi := t.Y-0.25*fs, t.Y+0.85*fs
		if !open {
			cur = Box{LLX: t.X, LLY: lo, URX: t.X + t.W, URY: hi}
			baseline, size, open = t.Y, fs, true
			continue
		}
		cur.LLX = math.Min(cur.LLX, t.X)
		cur.URX = math.Max(cur.URX, t.X+t.W)
		cur.LLY = math.Min(cur.LLY, lo)
		cur.URY = math.Max(cur.URY, hi)
		size = math.Max(size, fs)
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// annotate writes a copy of src with highlight annotations on the given
// 1-based pages.
func annotate(src, dst string, boxes map[int][]Box) error {
	m := make(map[int][]model.AnnotationRenderer, len(boxes))
	for page, bs := range boxes {
		for i, b := range bs {
			rect := types.NewRectangle(b.LLX, b.LLY, b.URX, b.URY)
			ann := model.NewHighlightAnnotation(
				*rect,
				0,
				"Cited passage",
				fmt.Sprintf("rag-cite-%d-%d", page, i),
				"",
				0,
				&highlightYellow,
				0, 0, 0,
				"",
				nil,
				nil,
				"", "",
				types.QuadPoints{*types.NewQuadLiteralForRect(rect)},
			)
			m[page] = append(m[page], &ann)
		}
	}
	if err := api.AddAnnotationsMapFile(src, dst, m, nil, false); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("annotate pdf: %w", err)
	}
	return nil
}

func (r *Renderer) pdfManifest(in citation.Instruction, src string) (Document, error) {
	m := Manifest{Source: src, Pages: make([]ManifestPage, 0, len(in.Locations))}
	pos := make(map[int]int, len(in.Locations))
	for _, loc := range in.Locations {
		pos[loc] = len(m.Pages)
		m.Pages = append(m.Pages, ManifestPage{Page: loc, Phrases: []string{}})
	}
	for _, ph := range in.Phrases {
		p := &m.Pages[pos[ph.Location]]
		p.Phrases = append(p.Phrases, ph.Text)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Document{}, err
	}
	name := OutputName(in.FileName, "_highlights.json")
	if err := os.WriteFile(filepath.Join(r.outputDir, name), data, 0o644); err != nil {
		return Document{}, err
	}
	return Document{Source: in.FileName, FileName: name, Kind: citation.KindPDF, Locations: in.Locations}, nil
}
