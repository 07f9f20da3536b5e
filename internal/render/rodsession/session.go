package rodsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/rankcrawl/internal/render"
)

// scriptClick is evaluated with the element bound to this.
const scriptClick = `() => this.click()`

// Session is one incognito page. It implements render.Session.
type Session struct {
	owner   *Browser
	context *rod.Browser
	page    *rod.Page

	navTimeout   time.Duration
	clickTimeout time.Duration
	pollInterval time.Duration

	mu     sync.Mutex
	url    string
	closed bool
}

// Open navigates to url and waits for the load event.
func (s *Session) Open(ctx context.Context, url string) error {
	if s.isClosed() {
		return render.ErrSessionClosed
	}

	p := s.page.Context(ctx).Timeout(s.navTimeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return mapError(fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		return mapError(fmt.Errorf("failed to load %s: %w", url, err))
	}

	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

// URL returns the URL of the current document. Client-side navigation is
// picked up from the page target when available.
func (s *Session) URL() string {
	if info, err := s.page.Info(); err == nil && info.URL != "" {
		return info.URL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// FindAll returns the elements matching selector. It does not wait.
func (s *Session) FindAll(ctx context.Context, selector string) ([]render.Element, error) {
	if s.isClosed() {
		return nil, render.ErrSessionClosed
	}
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query %q: %w", selector, err))
	}
	return wrap(els, s.clickTimeout), nil
}

// WaitUntil polls cond until it holds or timeout elapses.
func (s *Session) WaitUntil(ctx context.Context, cond render.Condition, timeout time.Duration) error {
	if s.isClosed() {
		return render.ErrSessionClosed
	}
	return render.Poll(ctx, cond, timeout, s.pollInterval)
}

// Close closes the page and its incognito context.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.owner.forget(s)
	_ = s.page.Close()
	return s.context.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// element wraps a go-rod element handle.
type element struct {
	el           *rod.Element
	clickTimeout time.Duration
}

func wrap(els rod.Elements, clickTimeout time.Duration) []render.Element {
	out := make([]render.Element, len(els))
	for i, el := range els {
		out[i] = &element{el: el, clickTimeout: clickTimeout}
	}
	return out
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", mapError(err)
	}
	return text, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, mapError(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) FindAll(ctx context.Context, selector string) ([]render.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query %q: %w", selector, err))
	}
	return wrap(els, e.clickTimeout), nil
}

// Click waits at most clickTimeout for the element to become interactable.
// go-rod retries a covered element until its context ends.
func (e *element) Click(ctx context.Context) error {
	clickCtx, cancel := context.WithTimeout(ctx, e.clickTimeout)
	defer cancel()
	return clickError(ctx, e.el.Context(clickCtx).Click(proto.InputMouseButtonLeft, 1), e.clickTimeout)
}

// ScriptClick runs the element's click handler. A navigation started by
// the click destroys the evaluation context before the result arrives;
// the click itself went through.
func (e *element) ScriptClick(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(scriptClick)
	if err != nil && isNavigatedAway(err) {
		return nil
	}
	return mapError(err)
}

// clickError maps the outcome of a native click bounded by d. Only the
// expiry of the click's own bound becomes ErrClickIntercepted; the parent
// context ending is passed through.
func clickError(parent context.Context, err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no clickable point within %s", render.ErrClickIntercepted, d)
	}
	return mapError(err)
}
