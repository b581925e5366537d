package detection

// Severity ranks how dangerous an exposed credential is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func (s Severity) String() string { return string(s) }

// ParseSeverity converts a string to a Severity. Unknown values map to the
// empty severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info":
		return SeverityInfo
	default:
		return ""
	}
}

// Match is a single raw pattern hit inside one line of text. Matches are
// transient; the engine classifies them into Findings and callers never
// persist them directly.
type Match struct {
	Pattern     Pattern
	Raw         string
	LineNumber  int // 1-based
	ColumnStart int
	ColumnEnd   int
}

// Finding is one accepted secret detection with classification metadata.
// The snippet is a bounded copy of the matched text to limit re-exposure of
// the credential in storage and logs.
type Finding struct {
	SecretType  string
	Snippet     string
	FilePath    string
	LineNumber  int
	ColumnStart int
	ColumnEnd   int
	Entropy     float64
	Severity    Severity
	Confidence  float64
}
