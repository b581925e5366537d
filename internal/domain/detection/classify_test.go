package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifierSeverity(t *testing.T) {
	t.Parallel()

	cfg := DefaultClassifierConfig()

	tests := []struct {
		name       string
		secretType string
		entropy    float64
		want       Severity
	}{
		{
			name:       "critical type ignores entropy",
			secretType: "RSA Private Key",
			entropy:    0.0,
			want:       SeverityCritical,
		},
		{
			name:       "aws secret access key is critical",
			secretType: "AWS Secret Access Key",
			entropy:    4.9,
			want:       SeverityCritical,
		},
		{
			name:       "high type above entropy gate",
			secretType: "GitHub Token",
			entropy:    4.6,
			want:       SeverityHigh,
		},
		{
			name:       "high type below entropy gate falls through to bands",
			secretType: "GitHub Token",
			entropy:    4.2,
			want:       SeverityMedium,
		},
		{
			name:       "unknown type with very high entropy",
			secretType: "Mailgun API Key",
			entropy:    5.1,
			want:       SeverityHigh,
		},
		{
			name:       "unknown type with moderate entropy",
			secretType: "Mailgun API Key",
			entropy:    4.2,
			want:       SeverityMedium,
		},
		{
			name:       "unknown type with low entropy",
			secretType: "Mailgun API Key",
			entropy:    3.0,
			want:       SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cfg.Severity(tt.secretType, tt.entropy))
		})
	}
}

func TestClassifierConfidence(t *testing.T) {
	t.Parallel()

	cfg := DefaultClassifierConfig()
	thresh := 4.5

	tests := []struct {
		name      string
		entropy   float64
		threshold *float64
		want      float64
	}{
		{name: "no threshold is structural", entropy: 0.0, threshold: nil, want: 1.0},
		{name: "well above threshold", entropy: 5.5, threshold: &thresh, want: 1.0},
		{name: "at threshold", entropy: 4.5, threshold: &thresh, want: 0.8},
		{name: "just below threshold", entropy: 4.2, threshold: &thresh, want: 0.6},
		{name: "far below threshold", entropy: 3.0, threshold: &thresh, want: 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cfg.Confidence(tt.entropy, tt.threshold))
		})
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SeverityCritical, ParseSeverity("critical"))
	assert.Equal(t, SeverityInfo, ParseSeverity("info"))
	assert.Equal(t, Severity(""), ParseSeverity("bogus"))
}
