package config

import (
	"fmt"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// VariantConfig describes one API variant, either built in or loaded from
// the configuration file. Zero values mean "inherit". Delay, MaxRetries and
// MaxBackoff are pointers because zero is a meaningful setting for them.
type VariantConfig struct {
	// URL is the query endpoint. The escaped prefix is appended verbatim,
	// so it normally ends with "query=".
	URL string `yaml:"url,omitempty"`

	// Alphabet lists the expansion symbols, one rune each, in order.
	Alphabet string `yaml:"alphabet,omitempty"`

	// ResultsPath is the gjson path of the suggestion list in a response.
	ResultsPath string `yaml:"resultsPath,omitempty"`

	MaxLength             int             `yaml:"maxLength,omitempty"`
	Delay                 *time.Duration  `yaml:"delay,omitempty"`
	MaxRetries            *int            `yaml:"maxRetries,omitempty"`
	MaxConcurrentRequests int             `yaml:"maxConcurrentRequests,omitempty"`
	MaxResultsPerCall     int             `yaml:"maxResultsPerCall,omitempty"`
	Backoff               BackoffStrategy `yaml:"backoff,omitempty"`
	MaxBackoff            *time.Duration  `yaml:"maxBackoff,omitempty"`
}

// BuiltinVariants are the three versions of the public autocomplete API.
var BuiltinVariants = map[string]VariantConfig{
	"v1": {
		URL:      "http://35.200.185.69:8000/v1/autocomplete?query=",
		Alphabet: "abcdefghijklmnopqrstuvwxyz",
	},
	"v2": {
		URL:      "http://35.200.185.69:8000/v2/autocomplete?query=",
		Alphabet: "abcdefghijklmnopqrstuvwxyz1234567890",
	},
	"v3": {
		URL:      "http://35.200.185.69:8000/v3/autocomplete?query=",
		Alphabet: "abcdefghijklmnopqrstuvwxyz1234567890>.<,?!@#$%^&*()_+-=[]{}|;: ",
	},
}

// BuiltinVariantNames returns the built-in variant names in sorted order.
func BuiltinVariantNames() []string {
	names := make([]string, 0, len(BuiltinVariants))
	for name := range BuiltinVariants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// merge returns v overridden by the non-zero fields of override.
func (v VariantConfig) merge(override VariantConfig) VariantConfig {
	result := v
	if override.URL != "" {
		result.URL = override.URL
	}
	if override.Alphabet != "" {
		result.Alphabet = override.Alphabet
	}
	if override.ResultsPath != "" {
		result.ResultsPath = override.ResultsPath
	}
	if override.MaxLength != 0 {
		result.MaxLength = override.MaxLength
	}
	if override.Delay != nil {
		result.Delay = override.Delay
	}
	if override.MaxRetries != nil {
		result.MaxRetries = override.MaxRetries
	}
	if override.MaxConcurrentRequests != 0 {
		result.MaxConcurrentRequests = override.MaxConcurrentRequests
	}
	if override.MaxResultsPerCall != 0 {
		result.MaxResultsPerCall = override.MaxResultsPerCall
	}
	if override.Backoff != "" {
		result.Backoff = override.Backoff
	}
	if override.MaxBackoff != nil {
		result.MaxBackoff = override.MaxBackoff
	}
	return result
}

// applyTo copies the set fields of v onto s.
func (v VariantConfig) applyTo(s *Settings) {
	if v.ResultsPath != "" {
		s.ResultsPath = v.ResultsPath
	}
	if v.MaxLength != 0 {
		s.MaxLength = v.MaxLength
	}
	if v.Delay != nil {
		s.Delay = *v.Delay
	}
	if v.MaxRetries != nil {
		s.MaxRetries = *v.MaxRetries
	}
	if v.MaxConcurrentRequests != 0 {
		s.MaxConcurrentRequests = v.MaxConcurrentRequests
	}
	if v.MaxResultsPerCall != 0 {
		s.MaxResultsPerCall = v.MaxResultsPerCall
	}
	if v.Backoff != "" {
		s.Backoff = v.Backoff
	}
	if v.MaxBackoff != nil {
		s.MaxBackoff = *v.MaxBackoff
	}
}

// ParseAlphabet splits an alphabet string into its symbols.
// The string is NFC-normalized first so that a precomposed and a
// decomposed form of the same character are one symbol. Every symbol is a
// single rune; order is preserved.
func ParseAlphabet(alphabet string) ([]string, error) {
	if !utf8.ValidString(alphabet) {
		return nil, ErrInvalidSymbol
	}

	normalized := norm.NFC.String(alphabet)
	if normalized == "" {
		return nil, ErrEmptyAlphabet
	}

	symbols := make([]string, 0, utf8.RuneCountInString(normalized))
	seen := make(map[rune]bool)
	for _, r := range normalized {
		if unicode.IsControl(r) {
			return nil, fmt.Errorf("%w: %U", ErrInvalidSymbol, r)
		}
		if seen[r] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSymbol, r)
		}
		seen[r] = true
		symbols = append(symbols, string(r))
	}

	return symbols, nil
}
