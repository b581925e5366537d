package detection

import "math"

// ShannonEntropy computes the Shannon entropy in bits of the byte-frequency
// distribution of s. An empty string yields 0. The result is bounded by
// [0, 8] since the distribution ranges over 256 byte symbols.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0.0
	}

	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}

	entropy := 0.0
	total := float64(len(s))
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy += -p * math.Log2(p)
	}

	return entropy
}
