package paginate

import "errors"

var (
	// ErrNavigationTimeout is returned when the next page did not render
	// within the page timeout.
	ErrNavigationTimeout = errors.New("next page did not load in time")

	// ErrNavigationFailed is returned when the pagination control could
	// not be activated.
	ErrNavigationFailed = errors.New("could not advance to the next page")

	// ErrWalkConsumed is yielded when a walk sequence is iterated twice.
	ErrWalkConsumed = errors.New("walk sequence already consumed")
)
