package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "rankcrawl"

	// DefaultWorkers keeps crawling sequential: one browser tab at a time.
	DefaultWorkers = 1

	// DefaultPageTimeout bounds page loads and page-to-page transitions.
	DefaultPageTimeout = 15 * time.Second

	// DefaultSettleTimeout bounds dropdown and landing page waits.
	DefaultSettleTimeout = 10 * time.Second

	// DefaultPageDelay paces page transitions inside one task.
	DefaultPageDelay = 2 * time.Second

	// DefaultOutput is the CSV path used for ad-hoc --url runs.
	DefaultOutput = "rankings.csv"
)

// Config holds the options of one crawl invocation, populated from CLI
// flags and passed down explicitly.
type Config struct {
	// Sources are the names of configured or built-in sources to crawl.
	Sources []string

	// URL is an ad-hoc landing page crawled instead of named sources.
	URL string

	// Layout is "categorized" or "flat" for ad-hoc runs. Empty uses the
	// source's layout, or flat for --url.
	Layout string

	// Filter overrides the dropdown option to select before extraction.
	Filter string

	// Pagination is "next" or "load-more". Empty uses the source setting.
	Pagination string

	// Output overrides the CSV output path. Only valid with one source.
	Output string

	// Workers is the number of concurrent browser sessions.
	Workers int

	// PageTimeout bounds page loads and transitions.
	PageTimeout time.Duration

	// SettleTimeout bounds dropdown and landing page waits.
	SettleTimeout time.Duration

	// PageDelay is the minimum delay between page transitions of a task.
	PageDelay time.Duration

	// MaxPages caps pages per task. Zero means no cap.
	MaxPages int

	// Headless runs the browser without a window.
	Headless bool

	// BrowserBin is an explicit Chrome/Chromium binary.
	BrowserBin string

	// ControlURL attaches to an already running browser instead of
	// launching one.
	ControlURL string

	// Proxy routes browser traffic through the given proxy server.
	Proxy string

	// NoSandbox disables the Chrome sandbox, needed in some containers.
	NoSandbox bool

	// IgnoreRobots skips the robots.txt check.
	IgnoreRobots bool

	// SaveToDB stores the run in the history database.
	SaveToDB bool

	// DBDir is the directory holding the history database.
	DBDir string

	// JSONReport prints the run summary as JSON.
	JSONReport bool

	// MarkdownReport prints the run summary as Markdown.
	MarkdownReport bool

	// ReportFile writes the run summary to a file instead of stdout.
	ReportFile string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit .rankcrawl file.
	ConfigFilePath string
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Workers:       DefaultWorkers,
		PageTimeout:   DefaultPageTimeout,
		SettleTimeout: DefaultSettleTimeout,
		PageDelay:     DefaultPageDelay,
		Headless:      true,
		SaveToDB:      true,
		DBDir:         XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for rankcrawl, where the run
// history database lives.
// On Linux: ~/.local/share/rankcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for rankcrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 && c.URL == "" {
		return ErrNoSource
	}
	if len(c.Sources) > 0 && c.URL != "" {
		return ErrConflictingTargets
	}
	if c.Output != "" && len(c.Sources) > 1 {
		return ErrAmbiguousOutput
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.PageTimeout <= 0 || c.SettleTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.PageDelay < 0 {
		return ErrInvalidPageDelay
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	return nil
}
