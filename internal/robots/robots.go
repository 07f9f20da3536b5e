// Package robots checks robots.txt rules before a crawl starts.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// DefaultUserAgent is the agent name matched against robots.txt groups.
const DefaultUserAgent = "rankcrawl"

// DefaultTimeout bounds the robots.txt fetch.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a robots.txt response is read.
const maxBodyBytes = 512 * 1024

var (
	// ErrInvalidURL is returned for URLs without a scheme or host.
	ErrInvalidURL = errors.New("robots: invalid url")

	// ErrFetchFailed is returned when robots.txt could not be retrieved.
	ErrFetchFailed = errors.New("robots: fetch failed")
)

// Checker fetches robots.txt once per host and answers whether a path may
// be crawled.
type Checker struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient sets the client used to fetch robots.txt.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) {
		if c != nil {
			ch.client = c
		}
	}
}

// WithUserAgent sets the agent name sent and matched against groups.
func WithUserAgent(ua string) Option {
	return func(ch *Checker) {
		if ua != "" {
			ch.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ch *Checker) {
		ch.logger = logger
	}
}

// NewChecker creates a Checker.
func NewChecker(opts ...Option) *Checker {
	ch := &Checker{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
		hosts:     make(map[string]*robotstxt.RobotsData),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Allowed reports whether rawURL may be crawled.
//
// A robots.txt answered with 4xx allows everything. A 5xx answer
// disallows everything, following the robots.txt conventions.
func (ch *Checker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, data, err := ch.lookup(ctx, rawURL)
	if err != nil {
		return false, err
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	allowed := data.TestAgent(path, ch.userAgent)
	ch.logger.Debug("robots.txt checked", "url", rawURL, "allowed", allowed)
	return allowed, nil
}

// CrawlDelay returns the Crawl-delay declared for the agent on the host of
// rawURL, or zero when none is declared.
func (ch *Checker) CrawlDelay(ctx context.Context, rawURL string) (time.Duration, error) {
	_, data, err := ch.lookup(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	group := data.FindGroup(ch.userAgent)
	if group == nil {
		return 0, nil
	}
	return group.CrawlDelay, nil
}

func (ch *Checker) lookup(ctx context.Context, rawURL string) (*url.URL, *robotstxt.RobotsData, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	key := u.Scheme + "://" + strings.ToLower(u.Host)

	ch.mu.Lock()
	data, ok := ch.hosts[key]
	ch.mu.Unlock()
	if ok {
		return u, data, nil
	}

	data, err = ch.fetch(ctx, key+"/robots.txt")
	if err != nil {
		return nil, nil, err
	}

	ch.mu.Lock()
	ch.hosts[key] = data
	ch.mu.Unlock()
	return u, data, nil
}

func (ch *Checker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", ch.userAgent)

	resp, err := ch.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("robots: parse %s: %w", robotsURL, err)
	}
	ch.logger.Debug("robots.txt fetched", "url", robotsURL, "status", resp.StatusCode)
	return data, nil
}
