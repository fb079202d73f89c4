package safety

import (
	"fmt"
	"regexp"
)

// Category classifies why a term is disallowed.
type Category string

const (
	CategorySlur          Category = "slur"
	CategorySlang         Category = "slang"
	CategoryControversial Category = "controversial"
	CategoryOffBrand      Category = "off-brand"
	CategoryCustom        Category = "custom"
)

// Severity grades how bad a match is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BlacklistEntry is one disallowed term. Entries are immutable
// reference data; campaign-specific entries are layered on top at check
// time and never merged back into the global list.
type BlacklistEntry struct {
	Term     string   `json:"term"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
}

// DefaultBlacklist returns the built-in global term list used when no
// store-backed list is available.
func DefaultBlacklist() []BlacklistEntry {
	return []BlacklistEntry{
		{Term: "shit", Category: CategorySlur, Severity: SeverityHigh},
		{Term: "damn", Category: CategorySlur, Severity: SeverityMedium},
		{Term: "crap", Category: CategorySlur, Severity: SeverityMedium},
		{Term: "hell", Category: CategorySlur, Severity: SeverityLow},
		{Term: "wtf", Category: CategorySlang, Severity: SeverityHigh},
		{Term: "af", Category: CategorySlang, Severity: SeverityMedium},
		{Term: "deadass", Category: CategorySlang, Severity: SeverityLow},
		{Term: "no cap", Category: CategorySlang, Severity: SeverityLow},
		{Term: "politics", Category: CategoryControversial, Severity: SeverityMedium},
		{Term: "religion", Category: CategoryControversial, Severity: SeverityMedium},
		{Term: "get rich quick", Category: CategoryOffBrand, Severity: SeverityHigh},
		{Term: "scam", Category: CategoryOffBrand, Severity: SeverityHigh},
		{Term: "cheap", Category: CategoryOffBrand, Severity: SeverityLow},
	}
}

// compiledEntry pairs an entry with its word-boundary matcher.
type compiledEntry struct {
	entry   BlacklistEntry
	pattern *regexp.Regexp
}

func compileEntries(entries []BlacklistEntry) []compiledEntry {
	compiled := make([]compiledEntry, 0, len(entries))
	for _, e := range entries {
		compiled = append(compiled, compiledEntry{
			entry:   e,
			pattern: wordPattern(e.Term),
		})
	}
	return compiled
}

func wordPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\b`, regexp.QuoteMeta(term)))
}
