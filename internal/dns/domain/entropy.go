package domain

import (
	"math"
	"unicode/utf8"
)

// Entropy returns the Shannon entropy of s in bits per character.
// Characters are Unicode code points; the empty string scores 0.
//
// Natural-language labels such as "mail" score around 1.5-2, while hex or
// base64 payloads approach log2 of their alphabet size.
func Entropy(s string) float64 {
	if s == "" {
		return 0
	}

	counts := make(map[rune]int, len(s))
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}

	length := float64(n)
	h := 0.0
	for _, c := range counts {
		p := float64(c) / length
		h -= p * math.Log2(p)
	}
	return h
}

// SubdomainLength returns the length of s in characters.
func SubdomainLength(s string) int {
	return utf8.RuneCountInString(s)
}
