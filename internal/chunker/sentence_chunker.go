package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// DefaultMaxWords is the passage word budget.
const DefaultMaxWords = 64

// SentenceChunker packs consecutive sentences of a page into passages of at
// most maxWords words. A single sentence longer than the budget becomes its
// own passage.
type SentenceChunker struct {
	maxWords         int
	overlapSentences int
	splitter         *regexp.Regexp
}

func NewSentenceChunker(maxWords, overlapSentences int) *SentenceChunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &SentenceChunker{
		maxWords:         maxWords,
		overlapSentences: overlapSentences,
		splitter:         regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`),
	}
}

// Chunk cuts every page separately so each passage keeps a single origin.
// CSV records are never split.
func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	emit := func(page domain.Page, text string) {
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			FileName:   document.FileName,
			Location:   page.Number,
			Index:      idx,
			Text:       text,
			Metadata:   document.Metadata,
		})
	}
	for _, page := range document.Pages {
		if document.Kind == domain.KindCSV {
			if text := strings.TrimSpace(page.Text); text != "" {
				emit(page, text)
			}
			continue
		}
		for _, text := range c.pack(c.sentences(page.Text)) {
			emit(page, text)
		}
	}
	return chunks, nil
}

func (c *SentenceChunker) sentences(text string) []string {
	var out []string
	for _, s := range c.splitter.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *SentenceChunker) pack(sentences []string) []string {
	var (
		out   []string
		cur   []string
		words int
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
		}
	}
	for _, s := range sentences {
		n := len(strings.Fields(s))
		if len(cur) > 0 && words+n > c.maxWords {
			flush()
			cur, words = c.carry(cur, n)
		}
		cur = append(cur, s)
		words += n
	}
	flush()
	return out
}

// carry returns the overlap tail of the finished passage that still fits
// with a next sentence of n words.
func (c *SentenceChunker) carry(prev []string, n int) ([]string, int) {
	k := min(c.overlapSentences, len(prev))
	for ; k > 0; k-- {
		tail := prev[len(prev)-k:]
		words := 0
		for _, s := range tail {
			words += len(strings.Fields(s))
		}
		if words+n <= c.maxWords {
			return append([]string(nil), tail...), words
		}
	}
	return nil, 0
}
