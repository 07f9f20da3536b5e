package render

import "errors"

// Session errors shared by every implementation.
var (
	// ErrElementNotFound is returned when a selector matched nothing.
	// Callers usually recover by skipping the element.
	ErrElementNotFound = errors.New("element not found")

	// ErrWaitTimeout is returned when a wait condition did not hold within
	// its timeout.
	ErrWaitTimeout = errors.New("wait condition timed out")

	// ErrStaleElement is returned when an element handle no longer refers to
	// a node in the current document.
	ErrStaleElement = errors.New("element is no longer attached to the document")

	// ErrClickIntercepted is returned when a native click found no
	// clickable point within its bound, typically because another element
	// covers the target. A script click may still succeed.
	ErrClickIntercepted = errors.New("click intercepted by another element")

	// ErrSessionLost is returned when the underlying browser tab or
	// connection is gone. It is the only error that aborts a whole run.
	ErrSessionLost = errors.New("render session lost")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("render session closed")
)
