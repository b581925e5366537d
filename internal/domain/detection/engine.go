package detection

import (
	"path"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

// Config carries everything an Engine needs: the pattern library, placeholder
// markers, the classification policy, the extension allow-list and the safety
// bounds. It is captured at construction and never mutated afterwards, so
// multiple independently configured engines can coexist in one process and an
// engine is safe for concurrent use.
type Config struct {
	Patterns       []Pattern
	ExcludeMarkers []*regexp.Regexp
	Classifier     ClassifierConfig

	// ScannableExtensions is the lowercase extension allow-list (without the
	// leading dot) consulted by ShouldScan. Extensionless paths always pass.
	ScannableExtensions map[string]struct{}

	// MaxLineLength is the per-line safety bound: longer lines are skipped
	// entirely to avoid burning cycles on minified or binary-like content.
	MaxLineLength int

	// SnippetLength caps how much of a matched secret is copied into a
	// Finding.
	SnippetLength int
}

// DefaultConfig returns the built-in engine configuration.
func DefaultConfig() Config {
	return Config{
		Patterns:            DefaultPatterns(),
		ExcludeMarkers:      DefaultExcludeMarkers(),
		Classifier:          DefaultClassifierConfig(),
		ScannableExtensions: defaultScannableExtensions(),
		MaxLineLength:       10_000,
		SnippetLength:       100,
	}
}

func defaultScannableExtensions() map[string]struct{} {
	exts := []string{
		"py", "js", "ts", "java", "go", "rb", "php", "cs", "cpp", "c",
		"sh", "bash", "zsh", "env", "config", "cfg", "ini", "toml",
		"yaml", "yml", "json", "xml", "properties", "conf", "txt", "md",
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return set
}

// Engine scans text for exposed credentials. It is a pure, synchronous
// component with no shared mutable state.
type Engine struct{ cfg Config }

// NewEngine constructs an Engine from the provided configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Scan evaluates every pattern against every line of content and returns the
// accepted findings in pattern declaration order per line. It never fails:
// the worst case for any input is zero findings.
//
// Distinct patterns may match overlapping or identical byte ranges; such
// matches are reported independently since each pattern represents a
// different risk class.
func (e *Engine) Scan(content, filePath string) []Finding {
	var findings []Finding

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lineNum := i + 1

		if len(line) > e.cfg.MaxLineLength {
			continue
		}

		for _, pattern := range e.cfg.Patterns {
			for _, loc := range pattern.Regex.FindAllStringIndex(line, -1) {
				matched := line[loc[0]:loc[1]]

				if e.isLikelyFalsePositive(matched) {
					continue
				}

				entropy := ShannonEntropy(matched)
				if pattern.EntropyThreshold != nil && entropy < *pattern.EntropyThreshold {
					continue
				}

				findings = append(findings, Finding{
					SecretType:  pattern.Name,
					Snippet:     truncate(matched, e.cfg.SnippetLength),
					FilePath:    filePath,
					LineNumber:  lineNum,
					ColumnStart: loc[0],
					ColumnEnd:   loc[1],
					Entropy:     entropy,
					Severity:    e.cfg.Classifier.Severity(pattern.Name, entropy),
					Confidence:  e.cfg.Classifier.Confidence(entropy, pattern.EntropyThreshold),
				})
			}
		}
	}

	return findings
}

// ShouldScan reports whether a path is worth fetching at all: true iff its
// extension is allow-listed (case-insensitive) or the path has no extension.
// Dotfiles like ".env" count as extensionless.
func (e *Engine) ShouldScan(filePath string) bool {
	base := path.Base(strings.ToLower(filePath))
	ext := path.Ext(base)
	if ext == "" || ext == base {
		return true
	}
	_, ok := e.cfg.ScannableExtensions[strings.TrimPrefix(ext, ".")]
	return ok
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
