package render

import (
	"context"
	"fmt"
	"time"
)

// Element is a handle to a node in the session's current document.
type Element interface {
	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)

	// Attribute returns the value of the named attribute and whether it is set.
	Attribute(ctx context.Context, name string) (string, bool, error)

	// FindAll returns the descendants matching selector, in document order.
	// No match is not an error.
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// Click performs a native pointer click. Implementations bound the
	// wait for a clickable point and return ErrClickIntercepted when it
	// expires, even when ctx has no deadline.
	Click(ctx context.Context) error

	// ScriptClick dispatches a click through script execution. It is the
	// fallback for controls that swallow native clicks.
	ScriptClick(ctx context.Context) error
}

// Condition reports whether the rendered state is ready.
type Condition func(ctx context.Context) (bool, error)

// Session is one logical browser tab.
type Session interface {
	// Open navigates to url and waits for the document to load.
	Open(ctx context.Context, url string) error

	// URL returns the URL of the current document.
	URL() string

	// FindAll returns the elements matching selector in the current document.
	// No match is not an error.
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// WaitUntil blocks until cond holds or timeout elapses, in which case
	// it returns ErrWaitTimeout.
	WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) error

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Factory provisions sessions. Each worker owns the session it receives
// and must Close it.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context) (Session, error)

// NewSession calls f.
func (f FactoryFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}

// FindOne returns the first descendant of within matching selector.
func FindOne(ctx context.Context, within Element, selector string) (Element, error) {
	els, err := within.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return els[0], nil
}

// FindFirst returns the first element of the session's document matching
// selector.
func FindFirst(ctx context.Context, s Session, selector string) (Element, error) {
	els, err := s.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return els[0], nil
}
