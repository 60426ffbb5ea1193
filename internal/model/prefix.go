package model

import "unicode/utf8"

// PrefixLen returns the length of a prefix in alphabet symbols.
// Symbols are single runes, so this is the rune count, not the byte length.
func PrefixLen(prefix string) int {
	return utf8.RuneCountInString(prefix)
}

// Children returns prefix+symbol for every symbol, in alphabet order.
func Children(prefix string, alphabet []string) []string {
	children := make([]string, len(alphabet))
	for i, symbol := range alphabet {
		children[i] = prefix + symbol
	}
	return children
}

// MaxPrefixes returns the size of the full prefix tree: A + A^2 + ... + A^L.
// This is the upper bound on distinct prefixes a crawl can fetch.
func MaxPrefixes(alphabetSize, maxLength int) int {
	total := 0
	level := 1
	for range maxLength {
		level *= alphabetSize
		total += level
	}
	return total
}
