package citation

import (
	"strings"
)

// DefaultMaxAbsentRatio is the share of quote tokens allowed to be missing
// from a passage before the quote is considered not found.
const DefaultMaxAbsentRatio = 0.2

// Config holds the tunable matching parameters.
type Config struct {
	MaxAbsentRatio float64 `yaml:"max_absent_ratio"`
}

// DefaultConfig returns the matching parameters used when none are configured.
func DefaultConfig() Config {
	return Config{MaxAbsentRatio: DefaultMaxAbsentRatio}
}

// MatchMethod names the tolerance level at which a quote was located.
type MatchMethod string

const (
	MatchNone         MatchMethod = "none"
	MatchExact        MatchMethod = "exact"
	MatchTokenSubset  MatchMethod = "token_subset"
	MatchTokenOverlap MatchMethod = "token_overlap"
)

// Match is the result of locating a quote inside a passage.
// Offset is a byte offset into the normalized context and is only
// meaningful for exact matches; it is -1 otherwise.
type Match struct {
	Found  bool
	Offset int
	Method MatchMethod
}

// Locator finds approximate occurrences of a quote inside passage text.
type Locator struct {
	maxAbsentRatio float64
}

// NewLocator creates a locator. Ratios outside [0,1] fall back to the default.
func NewLocator(cfg Config) *Locator {
	r := cfg.MaxAbsentRatio
	if r < 0 || r > 1 {
		r = DefaultMaxAbsentRatio
	}
	return &Locator{maxAbsentRatio: r}
}

// MaxAbsentRatio returns the effective token tolerance.
func (l *Locator) MaxAbsentRatio() float64 { return l.maxAbsentRatio }

// Normalize collapses newlines and repeated whitespace, trims and lowercases.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Locate reports whether quote occurs in context. Checks run in order of
// increasing tolerance: exact substring, token subset, token overlap.
func (l *Locator) Locate(context, quote string) Match {
	c := Normalize(context)
	q := Normalize(quote)
	if q == "" {
		return Match{Offset: -1, Method: MatchNone}
	}
	if off := strings.Index(c, q); off >= 0 {
		return Match{Found: true, Offset: off, Method: MatchExact}
	}

	ctxTokens := tokenSet(c)
	quoteTokens := tokenSet(q)
	absent := 0
	for tok := range quoteTokens {
		if _, ok := ctxTokens[tok]; !ok {
			absent++
		}
	}
	if absent == 0 {
		return Match{Found: true, Offset: -1, Method: MatchTokenSubset}
	}
	if float64(absent)/float64(len(quoteTokens)) <= l.maxAbsentRatio {
		return Match{Found: true, Offset: -1, Method: MatchTokenOverlap}
	}
	return Match{Offset: -1, Method: MatchNone}
}

// Contains is Locate reduced to presence.
func (l *Locator) Contains(context, quote string) bool {
	return l.Locate(context, quote).Found
}

func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}
