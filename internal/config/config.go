package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// The crawl parameters match the values the autocomplete extractor has
// always used against the public test API.
const (
	// DefaultMaxLength bounds the prefix tree depth.
	// With 26 symbols this allows at most 26+26^2+26^3 prefixes.
	DefaultMaxLength = 3

	// DefaultDelay is the pacing delay before every network call.
	// 600ms keeps a single batch below the API's rate limit in practice.
	DefaultDelay = 600 * time.Millisecond

	// DefaultMaxRetries is the number of retries after a rate-limit response.
	DefaultMaxRetries = 5

	// DefaultMaxConcurrentRequests is the size of one fetch batch.
	DefaultMaxConcurrentRequests = 5

	// DefaultMaxResultsPerCall is the page size of the autocomplete API.
	// A response with exactly this many suggestions is treated as truncated.
	DefaultMaxResultsPerCall = 15

	// DefaultTimeout is the per-request deadline.
	// Without it a hung request would block its batch forever.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of variants crawled concurrently.
	// Variants usually share one server and one rate limit, so the default
	// runs them one after the other.
	DefaultBatchSize = 1

	// DefaultResultsPath is the gjson path of the suggestion list in a response.
	DefaultResultsPath = "results"

	// DefaultUserAgent identifies prefixscan in HTTP requests.
	DefaultUserAgent = "prefixscan/1.0 (+https://github.com/nao1215/prefixscan)"

	// DefaultMaxBodySize limits the response body size to read.
	DefaultMaxBodySize = 1 * 1024 * 1024 // 1MB

	// DefaultOutputDir is where result files are written.
	DefaultOutputDir = "."

	// AppName is the application name used for XDG directory paths.
	AppName = "prefixscan"
)

// BackoffStrategy selects how the wait grows between rate-limit retries.
type BackoffStrategy string

const (
	// BackoffLinear waits delay*(retry+1): 1x, 2x, 3x, ...
	BackoffLinear BackoffStrategy = "linear"

	// BackoffExponential waits delay*2^retry: 1x, 2x, 4x, ...
	BackoffExponential BackoffStrategy = "exponential"
)

// DefaultBackoff is the backoff strategy used when none is configured.
// Linear growth reproduces the wait times the extractor has always used.
const DefaultBackoff = BackoffLinear

// Valid reports whether s names a known strategy.
func (s BackoffStrategy) Valid() bool {
	return s == BackoffLinear || s == BackoffExponential
}

// Config holds all configuration options for prefixscan.
// This struct is populated from CLI flags and passed through the
// application rather than kept in global state.
//
// The crawl parameters here are global defaults. A variant defined in the
// configuration file may override any of them; see Settings.
type Config struct {
	// Variants is the list of API variant names to crawl, in order.
	Variants []string

	// MaxLength is the maximum prefix length in symbols.
	MaxLength int

	// Delay is the pacing delay before every network call and the unit of
	// the rate-limit backoff.
	Delay time.Duration

	// MaxRetries is the number of retries after a rate-limit response.
	MaxRetries int

	// MaxConcurrentRequests is the number of prefixes fetched per batch.
	MaxConcurrentRequests int

	// MaxResultsPerCall is the API page size used as the saturation signal.
	MaxResultsPerCall int

	// Backoff is the wait growth strategy between rate-limit retries.
	Backoff BackoffStrategy

	// MaxBackoff caps a single backoff wait. Zero means uncapped.
	MaxBackoff time.Duration

	// Timeout is the deadline for one HTTP request.
	Timeout time.Duration

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// BatchSize is the number of variants crawled concurrently.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .prefixscan in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// File holds the variant definitions loaded from the config file.
	File *File

	// OutputDir is the directory for results_<variant>.json and
	// extraction_summary.json.
	OutputDir string

	// JSONReport prints the run summary as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport prints the run summary as Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile also writes the run summary to this path.
	ReportFile string

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB records every run in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxLength:             DefaultMaxLength,
		Delay:                 DefaultDelay,
		MaxRetries:            DefaultMaxRetries,
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		MaxResultsPerCall:     DefaultMaxResultsPerCall,
		Backoff:               DefaultBackoff,
		Timeout:               DefaultTimeout,
		UserAgent:             DefaultUserAgent,
		MaxBodySize:           DefaultMaxBodySize,
		BatchSize:             DefaultBatchSize,
		OutputDir:             DefaultOutputDir,
	}
}

// XDGDataDir returns the XDG data directory for prefixscan.
// On Linux: ~/.local/share/prefixscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for prefixscan.
// On Linux: ~/.config/prefixscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the global options. Per-variant parameters are checked
// by Settings, which sees the file overrides as well.
// It returns the first error found.
func (c *Config) Validate() error {
	if len(c.Variants) == 0 {
		return ErrNoVariant
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	for _, name := range c.Variants {
		if _, err := c.Settings(name); err != nil {
			return err
		}
	}

	return nil
}

// Settings is the fully resolved crawl configuration of one variant.
type Settings struct {
	Variant               string
	URL                   string
	Alphabet              []string
	ResultsPath           string
	MaxLength             int
	Delay                 time.Duration
	MaxRetries            int
	MaxConcurrentRequests int
	MaxResultsPerCall     int
	Backoff               BackoffStrategy
	MaxBackoff            time.Duration
}

// Settings resolves the named variant. Values are layered, later wins:
// built-in variant, global Config, file defaults, file variant entry.
func (c *Config) Settings(name string) (Settings, error) {
	vc, ok := c.lookupVariant(name)
	if !ok {
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}

	s := Settings{
		Variant:               name,
		URL:                   vc.URL,
		ResultsPath:           DefaultResultsPath,
		MaxLength:             c.MaxLength,
		Delay:                 c.Delay,
		MaxRetries:            c.MaxRetries,
		MaxConcurrentRequests: c.MaxConcurrentRequests,
		MaxResultsPerCall:     c.MaxResultsPerCall,
		Backoff:               c.Backoff,
		MaxBackoff:            c.MaxBackoff,
	}
	if s.Backoff == "" {
		s.Backoff = DefaultBackoff
	}
	vc.applyTo(&s)

	if s.URL == "" {
		return Settings{}, fmt.Errorf("variant %q: %w", name, ErrMissingURL)
	}

	alphabet, err := ParseAlphabet(vc.Alphabet)
	if err != nil {
		return Settings{}, fmt.Errorf("variant %q: %w", name, err)
	}
	s.Alphabet = alphabet

	if err := s.validate(); err != nil {
		return Settings{}, fmt.Errorf("variant %q: %w", name, err)
	}
	return s, nil
}

// lookupVariant merges the built-in definition (if any) with the file
// defaults and the file entry (if any).
func (c *Config) lookupVariant(name string) (VariantConfig, bool) {
	builtin, isBuiltin := BuiltinVariants[name]

	var fromFile VariantConfig
	inFile := false
	if c.File != nil {
		_, inFile = c.File.Variants[name]
		fromFile = c.File.GetVariantConfig(name)
	}

	if !isBuiltin && !inFile {
		return VariantConfig{}, false
	}
	return builtin.merge(fromFile), true
}

func (s Settings) validate() error {
	if s.MaxLength < 1 {
		return ErrInvalidMaxLength
	}
	if s.Delay < 0 || s.MaxBackoff < 0 {
		return ErrInvalidDelay
	}
	if s.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if s.MaxConcurrentRequests <= 0 {
		return ErrInvalidConcurrency
	}
	if s.MaxResultsPerCall <= 0 {
		return ErrInvalidMaxResults
	}
	if !s.Backoff.Valid() {
		return ErrInvalidBackoff
	}
	return nil
}
