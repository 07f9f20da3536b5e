package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/nao1215/rankcrawl/internal/render"
)

// sessionPool hands out render sessions to workers. Sessions are created
// lazily, reused across tasks and all closed by closeAll.
type sessionPool struct {
	factory render.Factory

	mu     sync.Mutex
	idle   []render.Session
	all    []render.Session
	closed bool
}

func newSessionPool(factory render.Factory) *sessionPool {
	return &sessionPool{factory: factory}
}

// acquire returns an idle session or creates a new one.
func (p *sessionPool) acquire(ctx context.Context) (render.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, render.ErrSessionClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.factory.NewSession(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = s.Close()
		return nil, render.ErrSessionClosed
	}
	p.all = append(p.all, s)
	return s, nil
}

// release returns s to the pool. A broken session is closed instead.
func (p *sessionPool) release(s render.Session, broken bool) {
	if broken {
		_ = s.Close()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.idle = append(p.idle, s)
}

// size returns the number of sessions created so far.
func (p *sessionPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// closeAll closes every session the pool created.
func (p *sessionPool) closeAll() error {
	p.mu.Lock()
	sessions := p.all
	p.all, p.idle, p.closed = nil, nil, true
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
