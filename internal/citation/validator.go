package citation

import (
	"sort"

	"go.uber.org/zap"
)

// Outcome describes how a citation was grounded.
type Outcome string

const (
	// OutcomeClaimed means the quote was found in the passage the model named.
	OutcomeClaimed Outcome = "claimed"
	// OutcomeRescued means the quote was found by scanning all passages.
	OutcomeRescued Outcome = "rescued"
	// OutcomeDropped means the quote could not be grounded.
	OutcomeDropped Outcome = "dropped"
)

// Verdict is the validation result for one citation. Index is zero-based
// and -1 for dropped citations.
type Verdict struct {
	Citation Citation
	Index    int
	Outcome  Outcome
}

// Validation holds the deduplicated passage indices confirmed by citations.
type Validation struct {
	Indices  []int
	Verdicts []Verdict
}

// Has reports whether idx was validated.
func (v Validation) Has(idx int) bool {
	i := sort.SearchInts(v.Indices, idx)
	return i < len(v.Indices) && v.Indices[i] == idx
}

// Validator checks citations against the passages shown to the model.
type Validator struct {
	locator *Locator
	scanner *Scanner
	log     *zap.Logger
}

// NewValidator creates a validator using cfg for fuzzy matching.
func NewValidator(cfg Config, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	loc := NewLocator(cfg)
	return &Validator{locator: loc, scanner: NewScanner(loc), log: log}
}

// Validate grounds each citation in contexts. A citation whose claimed
// passage does not contain the quote, or whose id is missing or out of
// range, is rescued by a full scan in rank order; otherwise it is dropped.
func (v *Validator) Validate(contexts []string, citations []Citation) Validation {
	normalized := make([]string, len(contexts))
	for i, c := range contexts {
		normalized[i] = Normalize(c)
	}

	seen := make(map[int]struct{})
	out := Validation{Indices: []int{}, Verdicts: make([]Verdict, 0, len(citations))}
	accept := func(c Citation, idx int, o Outcome) {
		out.Verdicts = append(out.Verdicts, Verdict{Citation: c, Index: idx, Outcome: o})
		if _, dup := seen[idx]; dup {
			return
		}
		seen[idx] = struct{}{}
		out.Indices = append(out.Indices, idx)
	}

	for _, c := range citations {
		quote := Normalize(c.Quote)
		idx := c.SourceID.Value - 1
		if c.SourceID.Valid && idx >= 0 && idx < len(normalized) && v.locator.Contains(normalized[idx], quote) {
			accept(c, idx, OutcomeClaimed)
			continue
		}
		if found, ok := v.scanner.Scan(normalized, quote); ok {
			v.log.Debug("citation rescued by full scan",
				zap.Stringer("source_id", c.SourceID), zap.Int("index", found))
			accept(c, found, OutcomeRescued)
			continue
		}
		v.log.Warn("citation does not match any passage in the context list",
			zap.Stringer("source_id", c.SourceID), zap.String("quote", c.Quote))
		out.Verdicts = append(out.Verdicts, Verdict{Citation: c, Index: -1, Outcome: OutcomeDropped})
	}

	sort.Ints(out.Indices)
	return out
}
