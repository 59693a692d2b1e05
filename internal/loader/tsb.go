package loader

import (
	"regexp"
	"strings"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// MetadataKey is the document metadata entry holding the bulletin header.
const MetadataKey = "tsb"

const (
	tsbScanPages   = 3
	tsbHeaderLines = 6
)

var (
	tsbHeaderRe  = regexp.MustCompile(`(?i)TECHNICAL SERVICE BULLETIN|\bTSB ?[0-9-]{2,7}`)
	tsbActionRe  = regexp.MustCompile(`Action:|ACTION`)
	tsbSectionRe = regexp.MustCompile(`\n(Parts|SERVICE PROCEDURE|WARRANTY STATUS|Warranty Status:)`)
)

// DetectTSB reports whether one of the first three pages carries a
// bulletin header and returns the index of that page.
func DetectTSB(pages []domain.Page) (int, bool) {
	n := min(len(pages), tsbScanPages)
	for i := 0; i < n; i++ {
		if tsbHeaderRe.MatchString(header(pages[i].Text)) {
			return i, true
		}
	}
	return 0, false
}

// header returns the first non-blank lines of a page. Text extraction has
// no geometry, so the top of the page is approximated by line count.
func header(text string) string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == tsbHeaderLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// ExtractTSBMetadata returns everything on the bulletin's first page up to
// the first Parts, SERVICE PROCEDURE or WARRANTY STATUS section after the
// Action block, with newlines collapsed. ok is false when either anchor is
// missing; the text before the Action block is still returned.
func ExtractTSBMetadata(text string) (string, bool) {
	loc := tsbActionRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	meta := text[:loc[0]]
	rest := text[loc[0]:]
	end := tsbSectionRe.FindStringIndex(rest)
	if end == nil {
		return collapse(meta), false
	}
	return collapse(meta + rest[:end[0]]), true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
