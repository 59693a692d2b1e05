package citation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Tier records which parsing strategy produced a Response, from most to
// least trustworthy.
type Tier string

const (
	TierJSON          Tier = "json"
	TierBoundedJSON   Tier = "bounded_json"
	TierReconstructed Tier = "reconstructed"
	TierRaw           Tier = "raw"
)

// SourceID is the 1-based passage number claimed by the model. Valid is
// false when the number could not be recovered.
type SourceID struct {
	Value int
	Valid bool
}

// Resolved returns a valid source id.
func Resolved(n int) SourceID { return SourceID{Value: n, Valid: true} }

// Unresolved is the zero SourceID.
var Unresolved = SourceID{}

func (s SourceID) String() string {
	if !s.Valid {
		return "unresolved"
	}
	return strconv.Itoa(s.Value)
}

// UnmarshalJSON accepts a number, a numeric string or null. Anything else
// leaves the id unresolved instead of failing the whole document.
func (s *SourceID) UnmarshalJSON(b []byte) error {
	*s = Unresolved
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		b = []byte(strings.TrimSpace(str))
	}
	if n, err := strconv.Atoi(string(b)); err == nil {
		*s = Resolved(n)
		return nil
	}
	if f, err := strconv.ParseFloat(string(b), 64); err == nil && f == float64(int(f)) {
		*s = Resolved(int(f))
	}
	return nil
}

// MarshalJSON writes the id as a number, or null when unresolved.
func (s SourceID) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(s.Value)), nil
}

// Citation is a quote the model claims to have taken from a passage.
type Citation struct {
	SourceID SourceID `json:"source_id"`
	Quote    string   `json:"quote"`
}

// Response is the structured form of a model answer.
type Response struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Tier      Tier       `json:"tier"`
}

// Raw reports whether the answer was passed through without citations.
func (r Response) Raw() bool { return r.Tier == TierRaw }

var (
	answerStartRe     = regexp.MustCompile(`\{\s*"[Aa]nswer"`)
	jsonEndRe         = regexp.MustCompile(`\]\s*\}`)
	answerMarkerRe    = regexp.MustCompile(`"?[Aa]nswer"?\s*:`)
	citationsMarkerRe = regexp.MustCompile(`"?[Cc]itations"?\s*:`)
	noteMarkerRe      = regexp.MustCompile(`"?[Nn]ote"?\s*:`)
	objectRe          = regexp.MustCompile(`\{(?:[^{}"]|"(?:[^"\\]|\\.)*")*\}`)
	sourceFieldRe     = regexp.MustCompile(`(?i)"?source[ _\-]?id"?\s*:\s*"?(\d+)"?`)
	quoteFieldRe      = regexp.MustCompile(`(?is)"?quote"?\s*:\s*"((?:[^"\\]|\\.)*)"?`)
	sourceMarkerRe    = regexp.MustCompile(`(?i)[(\[]\s*source[ _\-]?id`)
	sourceIDRe        = regexp.MustCompile(`(?i)[(\[]\s*source[ _\-]?id\s*[:\-#]?\s*(\d+)`)
	doubleQuotedRe    = regexp.MustCompile(`["“](.+)["”]`)
	singleQuotedRe    = regexp.MustCompile(`(?:^|\s)'(.+)'(?:\s|$)`)
	listMarkerRe      = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s+`)
	leadingPunctRe    = regexp.MustCompile(`^\W+`)
	trailingPunctRe   = regexp.MustCompile(`\W+$`)
	wordRe            = regexp.MustCompile(`\w`)
	codeFenceRe       = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// Parser turns raw model output into a Response. It never fails: quality
// degrades from strict JSON to a bounded JSON slice, then regex
// reconstruction, and finally raw passthrough.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a parser. A nil logger discards diagnostics.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log}
}

// Parse extracts the answer and citations from raw.
func (p *Parser) Parse(raw string) Response {
	if resp, ok := decodeStrict(raw); ok {
		resp.Tier = TierJSON
		return resp
	}

	if slice, ok := boundedObject(raw); ok {
		if resp, ok := decodeStrict(slice); ok {
			resp.Tier = TierBoundedJSON
			return resp
		}
		if resp, ok := decodeLenient(slice); ok {
			resp.Tier = TierBoundedJSON
			return resp
		}
		p.log.Debug("bounded json slice did not decode", zap.Int("length", len(slice)))
	}

	if citationsMarkerRe.MatchString(raw) {
		resp := p.reconstruct(raw)
		resp.Tier = TierReconstructed
		p.log.Info("model output was not json, reconstructed citations",
			zap.Int("citations", len(resp.Citations)))
		return resp
	}

	p.log.Warn("model output has no citations, passing answer through")
	return Response{Answer: strings.TrimSpace(raw), Citations: []Citation{}, Tier: TierRaw}
}

type wireResponse struct {
	Answer    *string    `json:"answer"`
	Citations []Citation `json:"citations"`
}

func decodeStrict(s string) (Response, bool) {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if !strings.HasPrefix(s, "{") {
		return Response{}, false
	}
	// encoding/json matches keys case-insensitively, so "Answer" works too.
	var w wireResponse
	if err := json.Unmarshal([]byte(escapeControlChars(s)), &w); err != nil || w.Answer == nil {
		return Response{}, false
	}
	if w.Citations == nil {
		w.Citations = []Citation{}
	}
	return Response{Answer: *w.Answer, Citations: w.Citations}, true
}

// decodeLenient reads fields from almost-JSON such as arrays with trailing
// commas, which encoding/json rejects.
func decodeLenient(s string) (Response, bool) {
	doc := gjson.Parse(escapeControlChars(s))
	answer := doc.Get("answer")
	if !answer.Exists() {
		answer = doc.Get("Answer")
	}
	if !answer.Exists() {
		return Response{}, false
	}
	cits := doc.Get("citations")
	if !cits.Exists() {
		cits = doc.Get("Citations")
	}
	out := Response{Answer: answer.String(), Citations: []Citation{}}
	cits.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		c := Citation{Quote: v.Get("quote").String(), SourceID: sourceIDOf(v.Get("source_id"))}
		out.Citations = append(out.Citations, c)
		return true
	})
	return out, true
}

// boundedObject slices from the first `{"answer"` to the last `]}`.
func boundedObject(raw string) (string, bool) {
	start := answerStartRe.FindStringIndex(raw)
	ends := jsonEndRe.FindAllStringIndex(raw, -1)
	if start == nil || len(ends) == 0 {
		return "", false
	}
	end := ends[len(ends)-1][1]
	if start[0] >= end {
		return "", false
	}
	return raw[start[0]:end], true
}

func (p *Parser) reconstruct(raw string) Response {
	body := raw
	if loc := answerMarkerRe.FindStringIndex(body); loc != nil {
		body = body[loc[1]:]
	}
	answerText, block := body, ""
	if loc := citationsMarkerRe.FindStringIndex(body); loc != nil {
		answerText, block = body[:loc[0]], body[loc[1]:]
	}
	if loc := noteMarkerRe.FindStringIndex(block); loc != nil {
		block = block[:loc[0]]
	}

	resp := Response{Answer: cleanAnswer(answerText), Citations: []Citation{}}

	// Objects are salvaged one at a time so a malformed neighbour only
	// costs its own citation. Text between objects is read line by line.
	pos := 0
	for _, loc := range objectRe.FindAllStringIndex(block, -1) {
		p.parseLines(block[pos:loc[0]], strings.Count(block[:pos], "\n"), &resp)
		if c, ok := p.parseObject(block[loc[0]:loc[1]], strings.Count(block[:loc[0]], "\n")); ok {
			resp.Citations = append(resp.Citations, c)
		}
		pos = loc[1]
	}
	p.parseLines(block[pos:], strings.Count(block[:pos], "\n"), &resp)
	return resp
}

func (p *Parser) parseLines(text string, firstLine int, resp *Response) {
	for i, line := range strings.Split(text, "\n") {
		if !wordRe.MatchString(line) {
			continue
		}
		if c, ok := p.parseLine(line, firstLine+i); ok {
			resp.Citations = append(resp.Citations, c)
		}
	}
}

// parseObject reads one `{...}` citation with its fields in any order.
// Valid JSON goes through gjson; anything else falls back to field regexes.
func (p *Parser) parseObject(obj string, lineNo int) (Citation, bool) {
	text := escapeControlChars(obj)
	if gjson.Valid(text) {
		doc := gjson.Parse(text)
		quote := firstField(doc, "quote", "Quote")
		if quote.Type != gjson.String || strings.TrimSpace(quote.Str) == "" {
			p.log.Warn("citation object has no quote, dropping it",
				zap.Int("line", lineNo), zap.String("text", obj))
			return Citation{}, false
		}
		c := Citation{
			Quote:    strings.Join(strings.Fields(quote.Str), " "),
			SourceID: sourceIDOf(firstField(doc, "source_id", "sourceId", "source-id", "source")),
		}
		if !c.SourceID.Valid {
			p.log.Warn("citation source id not found", zap.Int("line", lineNo), zap.String("text", obj))
		}
		return c, true
	}
	if c, ok := p.fieldCitation(obj, lineNo); ok {
		return c, true
	}
	p.log.Warn("citation object has no quote, dropping it",
		zap.Int("line", lineNo), zap.String("text", obj))
	return Citation{}, false
}

// fieldCitation reads `"quote": "..."` and `"source_id": N` pairs from
// near-JSON text such as unquoted keys or a truncated final object.
func (p *Parser) fieldCitation(text string, lineNo int) (Citation, bool) {
	m := quoteFieldRe.FindStringSubmatch(text)
	if m == nil {
		return Citation{}, false
	}
	quote := unescapeJSONString(m[1])
	if quote == "" {
		return Citation{}, false
	}
	c := Citation{Quote: quote}
	if id := sourceFieldRe.FindStringSubmatch(text); id != nil {
		if n, err := strconv.Atoi(id[1]); err == nil {
			c.SourceID = Resolved(n)
		}
	} else if id := sourceIDRe.FindStringSubmatch(text); id != nil {
		if n, err := strconv.Atoi(id[1]); err == nil {
			c.SourceID = Resolved(n)
		}
	}
	if !c.SourceID.Valid {
		p.log.Warn("citation source id not found", zap.Int("line", lineNo), zap.String("text", text))
	}
	return c, true
}

func firstField(doc gjson.Result, names ...string) gjson.Result {
	for _, n := range names {
		if v := doc.Get(n); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func sourceIDOf(v gjson.Result) SourceID {
	switch v.Type {
	case gjson.Number:
		if v.Num == float64(int(v.Num)) {
			return Resolved(int(v.Num))
		}
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
			return Resolved(n)
		}
	}
	return Unresolved
}

func (p *Parser) parseLine(line string, lineNo int) (Citation, bool) {
	if c, ok := p.fieldCitation(line, lineNo); ok {
		return c, true
	}
	head := line
	if loc := sourceMarkerRe.FindStringIndex(line); loc != nil {
		head = line[:loc[0]]
	}

	var quote string
	if m := doubleQuotedRe.FindStringSubmatch(head); m != nil {
		quote = m[1]
	} else if m := singleQuotedRe.FindStringSubmatch(head); m != nil {
		quote = m[1]
	} else {
		quote = listMarkerRe.ReplaceAllString(head, "")
		quote = leadingPunctRe.ReplaceAllString(quote, "")
		quote = trailingPunctRe.ReplaceAllString(quote, "")
	}
	quote = strings.Join(strings.Fields(quote), " ")
	if quote == "" {
		p.log.Warn("citation quote not found, dropping line",
			zap.Int("line", lineNo), zap.String("text", line))
		return Citation{}, false
	}

	c := Citation{Quote: quote}
	m := sourceIDRe.FindStringSubmatch(line)
	if m == nil {
		p.log.Warn("citation source id not found",
			zap.Int("line", lineNo), zap.String("text", line))
		return c, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		p.log.Warn("citation source id is not an integer",
			zap.Int("line", lineNo), zap.String("id", m[1]))
		return c, true
	}
	c.SourceID = Resolved(n)
	return c, true
}

func cleanAnswer(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " ,{")
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.TrimSpace(s)
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// escapeControlChars escapes raw control characters that appear inside
// JSON string literals, e.g. quotes the model wrapped across lines.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteByte(ch)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(ch)
		case ch == '\\':
			escaped = true
			b.WriteByte(ch)
		case ch == '"':
			inString = false
			b.WriteByte(ch)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\r':
			b.WriteString(`\r`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch < 0x20:
			fmt.Fprintf(&b, `\u%04x`, ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
