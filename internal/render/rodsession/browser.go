package rodsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/rankcrawl/internal/render"
)

// Default browser settings.
const (
	// DefaultNavigationTimeout bounds a single page navigation plus load.
	DefaultNavigationTimeout = 60 * time.Second

	// DefaultClickTimeout bounds the wait for a native click target to
	// become interactable.
	DefaultClickTimeout = 5 * time.Second

	// DefaultPollInterval is how often WaitUntil re-checks its condition.
	DefaultPollInterval = 200 * time.Millisecond
)

// Browser owns one Chromium process (or remote connection) and hands out
// isolated sessions.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher

	headless     bool
	bin          string
	controlURL   string
	proxy        string
	noSandbox    bool
	navTimeout   time.Duration
	clickTimeout time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Option configures a Browser.
type Option func(*Browser)

// WithHeadless toggles headless mode. Default is true.
func WithHeadless(headless bool) Option {
	return func(b *Browser) {
		b.headless = headless
	}
}

// WithBinary sets the Chromium executable. Empty means auto-detect or
// download through the launcher.
func WithBinary(path string) Option {
	return func(b *Browser) {
		b.bin = path
	}
}

// WithControlURL attaches to an already running browser instead of
// launching one, e.g. "ws://127.0.0.1:9222/devtools/browser/<id>".
func WithControlURL(u string) Option {
	return func(b *Browser) {
		b.controlURL = u
	}
}

// WithProxy routes browser traffic through the given proxy server.
func WithProxy(proxy string) Option {
	return func(b *Browser) {
		b.proxy = proxy
	}
}

// WithNoSandbox disables the Chromium sandbox, needed inside most containers.
func WithNoSandbox(noSandbox bool) Option {
	return func(b *Browser) {
		b.noSandbox = noSandbox
	}
}

// WithNavigationTimeout bounds Open.
func WithNavigationTimeout(d time.Duration) Option {
	return func(b *Browser) {
		if d > 0 {
			b.navTimeout = d
		}
	}
}

// WithClickTimeout bounds each native click. When it expires the click
// fails with render.ErrClickIntercepted.
func WithClickTimeout(d time.Duration) Option {
	return func(b *Browser) {
		if d > 0 {
			b.clickTimeout = d
		}
	}
}

// WithPollInterval sets how often WaitUntil re-evaluates its condition.
func WithPollInterval(d time.Duration) Option {
	return func(b *Browser) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Browser) {
		b.logger = logger
	}
}

// Launch starts Chromium (or connects to WithControlURL) and returns a
// Browser ready to provision sessions.
func Launch(ctx context.Context, opts ...Option) (*Browser, error) {
	b := &Browser{
		headless:     true,
		navTimeout:   DefaultNavigationTimeout,
		clickTimeout: DefaultClickTimeout,
		pollInterval: DefaultPollInterval,
		sessions:     make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	controlURL := b.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.headless).Context(ctx)
		if b.bin != "" {
			l = l.Bin(b.bin)
		}
		if b.proxy != "" {
			l = l.Proxy(b.proxy)
		}
		if b.noSandbox {
			l = l.NoSandbox(true)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		b.launcher = l
		controlURL = u
		b.logger.Debug("browser launched", "headless", b.headless, "control_url", controlURL)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	b.browser = rb

	return b, nil
}

// NewSession opens an isolated incognito page. It implements render.Factory.
func (b *Browser) NewSession(ctx context.Context) (render.Session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, render.ErrSessionClosed
	}
	b.mu.Unlock()

	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to create incognito context: %w", err))
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, mapError(fmt.Errorf("failed to open page: %w", err))
	}

	s := &Session{
		owner:        b,
		context:      incognito,
		page:         page,
		navTimeout:   b.navTimeout,
		clickTimeout: b.clickTimeout,
		pollInterval: b.pollInterval,
	}

	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()

	return s, nil
}

// Close closes every open session and the browser. When the browser was
// launched by Launch, its process is killed and its profile removed.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sessions := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}

	var errs []error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return errors.Join(errs...)
}

func (b *Browser) forget(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
}

// mapError translates go-rod failures into render sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isNavigatedAway(err) {
		return fmt.Errorf("%w: %w", render.ErrStaleElement, err)
	}
	if isTargetGone(err) {
		return fmt.Errorf("%w: %w", render.ErrSessionLost, err)
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", render.ErrStaleElement, err)
	}
	return err
}

// isNavigatedAway matches the DevTools message sent when the document
// changed during a call on one of its objects. The tab is still usable.
func isNavigatedAway(err error) bool {
	return strings.Contains(err.Error(), "Inspected target navigated or closed")
}

// isTargetGone matches the DevTools messages sent when a tab was closed or
// crashed underneath us, or when the websocket to the browser dropped.
func isTargetGone(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"Target closed",
		"No target with given id",
		"Session with given id not found",
		"cdp connection closed",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
