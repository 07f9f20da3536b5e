package rendertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/rankcrawl/internal/render"
)

// Errors returned by scripted sessions.
var (
	// ErrNoRoute is returned by Open for URLs without a route.
	ErrNoRoute = errors.New("rendertest: no route for url")

	// ErrClickIntercepted is returned by a native click on a transition
	// configured with RejectNative or Covered.
	ErrClickIntercepted = render.ErrClickIntercepted
)

// DefaultClickTimeout bounds native clicks on covered elements.
const DefaultClickTimeout = 20 * time.Millisecond

// AnyDoc matches every source document in On.
const AnyDoc = "*"

// Transition describes what happens when an element is clicked.
type Transition struct {
	from     string
	selector string
	to       string
	url      string
	lag      int
	reject   bool
	covered  bool
	err      error
}

// WithLag delays the document swap until the session has served n more
// queries after the click.
func (t *Transition) WithLag(n int) *Transition {
	t.lag = n
	return t
}

// RejectNative makes native clicks fail; script clicks still succeed.
func (t *Transition) RejectNative() *Transition {
	t.reject = true
	return t
}

// Covered makes native clicks wait for a clickable point that never
// appears, until the site's click timeout or the caller's context ends.
// Script clicks still succeed.
func (t *Transition) Covered() *Transition {
	t.covered = true
	return t
}

// Fail makes every click on the element fail with err and leaves the
// document unchanged.
func (t *Transition) Fail(err error) *Transition {
	t.err = err
	return t
}

// Navigate sets the URL the session reports after the swap.
func (t *Transition) Navigate(url string) *Transition {
	t.url = url
	return t
}

// Click is one entry of the site's click log.
type Click struct {
	// Doc is the document shown when the click happened.
	Doc string

	// Text is the trimmed text of the clicked element.
	Text string

	// Script is true for ScriptClick.
	Script bool

	// Err is the error returned to the caller, if any.
	Err error
}

// Site is a scripted website shared by any number of sessions.
type Site struct {
	mu          sync.Mutex
	docs        map[string]string
	routes      map[string]string
	openErrs    map[string]error
	transitions []*Transition
	clicks      []Click
	sessions    int
	closed      int
	factoryErr  error
	clickBound  time.Duration
}

// NewSite creates an empty site.
func NewSite() *Site {
	return &Site{
		docs:       make(map[string]string),
		routes:     make(map[string]string),
		openErrs:   make(map[string]error),
		clickBound: DefaultClickTimeout,
	}
}

// Doc registers an HTML document under key.
func (s *Site) Doc(key, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = html
	return s
}

// Route maps url to the document key shown when the URL is opened.
func (s *Site) Route(url, key string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[url] = key
	return s
}

// FailOpen makes Open(url) return err.
func (s *Site) FailOpen(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErrs[url] = err
	return s
}

// ClickTimeout sets how long a native click on a covered element waits
// before failing with ErrClickIntercepted.
func (s *Site) ClickTimeout(d time.Duration) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickBound = d
	return s
}

// FailSessions makes NewSession return err.
func (s *Site) FailSessions(err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factoryErr = err
	return s
}

// On registers a transition: clicking an element matching selector while
// document from is shown swaps to document to. Use AnyDoc as from to match
// every document. The first registered matching transition wins.
func (s *Site) On(from, selector, to string) *Transition {
	t := &Transition{from: from, selector: selector, to: to}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
	return t
}

// NewSession opens a new session on the site. It implements render.Factory.
func (s *Site) NewSession(_ context.Context) (render.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factoryErr != nil {
		return nil, s.factoryErr
	}
	s.sessions++
	return &Session{site: s}, nil
}

// Clicks returns a copy of the click log.
func (s *Site) Clicks() []Click {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Click, len(s.clicks))
	copy(out, s.clicks)
	return out
}

// SessionsOpened returns how many sessions were created.
func (s *Site) SessionsOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// SessionsClosed returns how many sessions were closed.
func (s *Site) SessionsClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Site) route(url string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.openErrs[url]; ok {
		return "", "", err
	}
	key, ok := s.routes[url]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNoRoute, url)
	}
	html, ok := s.docs[key]
	if !ok {
		return "", "", fmt.Errorf("rendertest: route %s points to unknown doc %q", url, key)
	}
	return key, html, nil
}

func (s *Site) doc(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html, ok := s.docs[key]
	if !ok {
		return "", fmt.Errorf("rendertest: unknown doc %q", key)
	}
	return html, nil
}

func (s *Site) candidates(doc string) []*Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transition
	for _, t := range s.transitions {
		if t.from == doc || t.from == AnyDoc {
			out = append(out, t)
		}
	}
	return out
}

func (s *Site) logClick(c Click) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, c)
}

// waitCovered blocks like a native click on a covered element.
func (s *Site) waitCovered(ctx context.Context) error {
	s.mu.Lock()
	d := s.clickBound
	s.mu.Unlock()

	clickCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	<-clickCtx.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: no clickable point within %s", ErrClickIntercepted, d)
}

func (s *Site) sessionClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}
