package config

import "errors"

// Configuration validation errors returned by Config.Validate and
// SourceConfig.Validate. Callers match them with errors.Is.
var (
	// ErrNoSource is returned when neither a source name nor --url is given.
	ErrNoSource = errors.New("no source specified: name a configured source or use --url")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidTimeout is returned when a page or settle timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidPageDelay is returned when the delay between pages is negative.
	ErrInvalidPageDelay = errors.New("invalid page delay: must be non-negative")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	// Zero means no cap.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrConflictingTargets is returned when --url is combined with source names.
	ErrConflictingTargets = errors.New("conflicting targets: --url cannot be combined with source names")

	// ErrUnknownSource is returned for a source name that is neither built
	// in nor configured.
	ErrUnknownSource = errors.New("unknown source")

	// ErrAmbiguousOutput is returned when --output is combined with more
	// than one source.
	ErrAmbiguousOutput = errors.New("ambiguous output: --output requires a single source")

	// ErrInvalidSourceURL is returned when a source URL is not absolute.
	ErrInvalidSourceURL = errors.New("invalid source url: must be absolute http(s)")
)
