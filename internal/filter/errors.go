package filter

import "errors"

var (
	// ErrNotFound is returned when no dropdown on the page offers the
	// desired label.
	ErrNotFound = errors.New("filter option not found")

	// ErrClickRejected is returned when the option exists but selecting it
	// did not take effect, even through the script click fallback.
	ErrClickRejected = errors.New("filter option click rejected")
)
