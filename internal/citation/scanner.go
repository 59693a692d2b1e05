package citation

// Scanner searches an ordered passage list for a quote.
type Scanner struct {
	locator *Locator
}

// NewScanner wraps a locator. A nil locator uses the default configuration.
func NewScanner(locator *Locator) *Scanner {
	if locator == nil {
		locator = NewLocator(DefaultConfig())
	}
	return &Scanner{locator: locator}
}

// Scan returns the index of the first passage containing quote.
// Passages are rank ordered, so the first hit is the most relevant one.
func (s *Scanner) Scan(contexts []string, quote string) (int, bool) {
	for i, c := range contexts {
		if s.locator.Contains(c, quote) {
			return i, true
		}
	}
	return -1, false
}
