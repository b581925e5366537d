package detection

// ClassifierConfig is the severity/confidence policy table. It is plain data
// so policy can change without touching engine code: pattern classes map to
// severity floors and entropy bands map to severity and confidence.
type ClassifierConfig struct {
	// CriticalTypes are pattern names classified critical unconditionally.
	CriticalTypes map[string]struct{}

	// HighTypes are pattern names classified high when the match entropy
	// exceeds HighTypeEntropy.
	HighTypes map[string]struct{}

	// HighTypeEntropy is the entropy gate for HighTypes membership.
	HighTypeEntropy float64

	// HighEntropy and MediumEntropy are the type-independent entropy bands.
	HighEntropy   float64
	MediumEntropy float64
}

// DefaultClassifierConfig returns the built-in classification policy.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		CriticalTypes: map[string]struct{}{
			"AWS Secret Access Key": {},
			"RSA Private Key":       {},
			"SSH Private Key":       {},
		},
		HighTypes: map[string]struct{}{
			"AWS Access Key ID": {},
			"GitHub Token":      {},
			"Stripe API Key":    {},
		},
		HighTypeEntropy: 4.5,
		HighEntropy:     5.0,
		MediumEntropy:   4.0,
	}
}

// Severity classifies a match by pattern identity and entropy. Rules are
// evaluated in order; the first that applies wins.
func (c ClassifierConfig) Severity(secretType string, entropy float64) Severity {
	if _, ok := c.CriticalTypes[secretType]; ok {
		return SeverityCritical
	}
	if _, ok := c.HighTypes[secretType]; ok && entropy > c.HighTypeEntropy {
		return SeverityHigh
	}
	if entropy > c.HighEntropy {
		return SeverityHigh
	}
	if entropy > c.MediumEntropy {
		return SeverityMedium
	}
	return SeverityLow
}

// Confidence scores a match in [0,1] from its entropy relative to the
// pattern's threshold. A pattern without a threshold is a structural,
// unambiguous match and always scores 1.0.
//
// The engine rejects sub-threshold matches before classification, so the
// 0.4 and 0.6 bands are reachable only when a caller classifies a match
// independently of the engine's own rejection step.
func (c ClassifierConfig) Confidence(entropy float64, entropyThreshold *float64) float64 {
	if entropyThreshold == nil {
		return 1.0
	}

	t := *entropyThreshold
	switch {
	case entropy >= t+1.0:
		return 1.0
	case entropy >= t:
		return 0.8
	case entropy >= t-0.5:
		return 0.6
	default:
		return 0.4
	}
}
