package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate(), Config.Settings() and
// ParseAlphabet() and describe what is wrong with the configuration.
// All of them are fatal: a crawl never starts with an invalid configuration.
// Callers match them with errors.Is; wrapping sites add the variant name.
var (
	// ErrNoVariant is returned when no API variant is selected.
	ErrNoVariant = errors.New("no variant specified: provide at least one API variant")

	// ErrUnknownVariant is returned when a variant name is neither built in
	// nor defined in the configuration file.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrMissingURL is returned when a variant has no API URL.
	ErrMissingURL = errors.New("variant has no API URL")

	// ErrEmptyAlphabet is returned when a variant has no expansion symbols.
	ErrEmptyAlphabet = errors.New("alphabet is empty")

	// ErrInvalidSymbol is returned when the alphabet is not valid UTF-8 or
	// contains a control character.
	ErrInvalidSymbol = errors.New("alphabet contains an invalid symbol")

	// ErrDuplicateSymbol is returned when the alphabet contains the same
	// symbol twice after normalization. Duplicates would queue the same
	// prefix twice.
	ErrDuplicateSymbol = errors.New("alphabet contains a duplicate symbol")

	// ErrInvalidMaxLength is returned when the maximum prefix length is below 1.
	ErrInvalidMaxLength = errors.New("invalid max length: must be at least 1")

	// ErrInvalidDelay is returned when the pacing delay is negative.
	// Use 0 to disable pacing.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxRetries is returned when the retry ceiling is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidConcurrency is returned when the number of concurrent
	// requests per batch is not positive.
	ErrInvalidConcurrency = errors.New("invalid max concurrent requests: must be positive")

	// ErrInvalidMaxResults is returned when the per-call result cap is not positive.
	ErrInvalidMaxResults = errors.New("invalid max results per call: must be positive")

	// ErrInvalidBackoff is returned for an unknown backoff strategy name.
	ErrInvalidBackoff = errors.New("invalid backoff strategy: must be linear or exponential")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the number of variants crawled
	// concurrently is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
