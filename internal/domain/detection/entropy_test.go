package detection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShannonEntropy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "empty string", input: "", want: 0.0},
		{name: "single character", input: "a", want: 0.0},
		{name: "repeated character", input: strings.Repeat("a", 34), want: 0.0},
		{name: "two characters evenly split", input: "abab", want: 1.0},
		{name: "four distinct characters", input: "abcd", want: 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ShannonEntropy(tt.input), 1e-9)
		})
	}
}

func TestShannonEntropyOrdering(t *testing.T) {
	t.Parallel()

	random := "aB3$xK9mQ2pL7nR4vT8wZ1yF6jC0sD5gHe"
	repeated := strings.Repeat("a", len(random))

	high := ShannonEntropy(random)
	low := ShannonEntropy(repeated)

	assert.Greater(t, high, low)
	assert.Greater(t, high, 4.0)
	assert.Less(t, low, 1.0)
}

func TestShannonEntropyBounds(t *testing.T) {
	t.Parallel()

	// All 256 byte values once gives the maximum-entropy distribution.
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	assert.InDelta(t, 8.0, ShannonEntropy(string(all)), 1e-9)
}
