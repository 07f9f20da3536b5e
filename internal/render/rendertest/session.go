package rendertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/rankcrawl/internal/render"
)

// PollInterval is the interval WaitUntil uses between evaluations.
const PollInterval = time.Millisecond

type pendingSwap struct {
	t         *Transition
	remaining int
}

// Session is a scripted render.Session backed by parsed HTML documents.
type Session struct {
	site *Site

	mu      sync.Mutex
	url     string
	docKey  string
	root    *html.Node
	pending *pendingSwap
	closed  bool
}

var _ render.Session = (*Session)(nil)

// Open shows the document routed for url.
func (s *Session) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return render.ErrSessionClosed
	}
	key, doc, err := s.site.route(url)
	if err != nil {
		return err
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return err
	}
	s.url, s.docKey, s.root, s.pending = url, key, root, nil
	return nil
}

// URL returns the current URL.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Doc returns the key of the document currently shown.
func (s *Session) Doc() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docKey
}

// FindAll returns all elements matching selector in the current document.
func (s *Session) FindAll(ctx context.Context, selector string) ([]render.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tickLocked(); err != nil {
		return nil, err
	}
	if s.root == nil {
		return nil, nil
	}
	return s.wrapLocked(goquery.NewDocumentFromNode(s.root).Find(selector)), nil
}

// WaitUntil polls cond until it holds or timeout elapses.
func (s *Session) WaitUntil(ctx context.Context, cond render.Condition, timeout time.Duration) error {
	return render.Poll(ctx, cond, timeout, PollInterval)
}

// Close marks the session closed. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.site.sessionClosed()
	return nil
}

// tickLocked counts one query against a pending swap.
func (s *Session) tickLocked() error {
	if s.closed {
		return render.ErrSessionClosed
	}
	if s.pending == nil {
		return nil
	}
	s.pending.remaining--
	if s.pending.remaining > 0 {
		return nil
	}
	t := s.pending.t
	s.pending = nil
	return s.swapLocked(t)
}

func (s *Session) swapLocked(t *Transition) error {
	doc, err := s.site.doc(t.to)
	if err != nil {
		return err
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return err
	}
	s.docKey, s.root = t.to, root
	if t.url != "" {
		s.url = t.url
	}
	return nil
}

func (s *Session) wrapLocked(sel *goquery.Selection) []render.Element {
	out := make([]render.Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, &element{s: s, path: pathOf(n), tag: n.Data})
	}
	return out
}

// resolveLocked finds the node at the element's path in the current
// document.
func (s *Session) resolveLocked(e *element) (*html.Node, error) {
	if s.closed {
		return nil, render.ErrSessionClosed
	}
	n := s.root
	for _, idx := range e.path {
		if n == nil {
			return nil, render.ErrStaleElement
		}
		c := n.FirstChild
		for i := 0; i < idx && c != nil; i++ {
			c = c.NextSibling
		}
		n = c
	}
	if n == nil || n.Type != html.ElementNode || n.Data != e.tag {
		return nil, render.ErrStaleElement
	}
	return n, nil
}

func (s *Session) click(ctx context.Context, e *element, script bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	n, err := s.resolveLocked(e)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	sel := goquery.NewDocumentFromNode(n).Selection
	entry := Click{Doc: s.docKey, Text: strings.TrimSpace(sel.Text()), Script: script}

	var match *Transition
	for _, t := range s.site.candidates(s.docKey) {
		if sel.Is(t.selector) {
			match = t
			break
		}
	}

	// The session stays usable by other callers while a covered click waits.
	if match != nil && match.covered && !script && match.err == nil {
		s.mu.Unlock()
		entry.Err = s.site.waitCovered(ctx)
		s.site.logClick(entry)
		return entry.Err
	}
	defer s.mu.Unlock()

	switch {
	case match == nil:
	case match.err != nil:
		entry.Err = match.err
	case match.reject && !script:
		entry.Err = ErrClickIntercepted
	case match.lag > 0:
		s.pending = &pendingSwap{t: match, remaining: match.lag}
	default:
		s.pending = nil
		if err := s.swapLocked(match); err != nil {
			entry.Err = err
		}
	}
	s.site.logClick(entry)
	return entry.Err
}

// pathOf returns child indexes from the document root down to n.
func pathOf(n *html.Node) []int {
	var rev []int
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		idx := 0
		for c := cur.Parent.FirstChild; c != cur; c = c.NextSibling {
			idx++
		}
		rev = append(rev, idx)
	}
	path := make([]int, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

type element struct {
	s    *Session
	path []int
	tag  string
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	n, err := e.s.resolveLocked(e)
	if err != nil {
		return "", err
	}
	return goquery.NewDocumentFromNode(n).Text(), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	n, err := e.s.resolveLocked(e)
	if err != nil {
		return "", false, err
	}
	v, ok := goquery.NewDocumentFromNode(n).Attr(name)
	return v, ok, nil
}

func (e *element) FindAll(ctx context.Context, selector string) ([]render.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.s.tickLocked(); err != nil {
		return nil, err
	}
	n, err := e.s.resolveLocked(e)
	if err != nil {
		return nil, err
	}
	return e.s.wrapLocked(goquery.NewDocumentFromNode(n).Find(selector)), nil
}

func (e *element) Click(ctx context.Context) error {
	return e.s.click(ctx, e, false)
}

func (e *element) ScriptClick(ctx context.Context) error {
	return e.s.click(ctx, e, true)
}
