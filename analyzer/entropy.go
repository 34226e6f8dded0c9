package analyzer

import "math"

// CalculateEntropy computes the Shannon entropy of the buffer's byte-value
// histogram in bits per byte. The result ranges from 0.0 (uniform content)
// to 8.0 (every byte value equally likely). Empty input yields 0.0.
//
// The whole buffer is measured at once; there is no block-wise analysis.
func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var histogram [256]int
	for _, b := range data {
		histogram[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}

	return entropy
}
