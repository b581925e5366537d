package detection

import (
	regexp "github.com/wasilibs/go-re2"
)

// DefaultExcludeMarkers returns the built-in placeholder markers. A match
// containing any of these (case-insensitively) is suppressed as a likely
// false positive. Suppression is uniform: no marker is pattern-specific.
func DefaultExcludeMarkers() []*regexp.Regexp {
	return []*regexp.Regexp{
		// "example" only counts as a placeholder when it sits next to a
		// separator; bare occurrences appear inside legitimate key material
		// (AWS's documented AKIA...EXAMPLE key ID must still be reported).
		regexp.MustCompile(`(?i)(?:example[_-]|[_-]example)`),
		regexp.MustCompile(`(?i)sample`),
		regexp.MustCompile(`(?i)placeholder`),
		regexp.MustCompile(`(?i)your[\s_-]?api[\s_-]?key`),
		regexp.MustCompile(`(?i)dummy`),
		regexp.MustCompile(`(?i)test[_-]?key`),
		regexp.MustCompile(`(?i)fake`),
		regexp.MustCompile(`(?i)xxx+`),
	}
}

// isLikelyFalsePositive reports whether matched looks like a placeholder
// rather than a real credential.
func (e *Engine) isLikelyFalsePositive(matched string) bool {
	for _, marker := range e.cfg.ExcludeMarkers {
		if marker.MatchString(matched) {
			return true
		}
	}
	return false
}
