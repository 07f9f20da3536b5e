package model

import (
	"errors"
	"testing"
)

// TestFailureReasonString tests reason names and their inverse.
func TestFailureReasonString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		reason   FailureReason
		expected string
	}{
		{FailureUnknown, "unknown"},
		{FailureFilterNotFound, "filter_not_found"},
		{FailureFilterClickRejected, "filter_click_rejected"},
		{FailureNavigationTimeout, "navigation_timeout"},
		{FailureNavigationFailed, "navigation_failed"},
		{FailureSessionLost, "session_lost"},
		{FailureDisallowed, "disallowed"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.reason.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.reason.String(), tc.expected)
			}
			if ParseFailureReason(tc.expected) != tc.reason {
				t.Errorf("ParseFailureReason(%q) = %v", tc.expected, ParseFailureReason(tc.expected))
			}
		})
	}

	if ParseFailureReason("bogus") != FailureUnknown {
		t.Error("unknown names should parse to FailureUnknown")
	}
}

// TestNewTaskFailure tests failure construction.
func TestNewTaskFailure(t *testing.T) {
	t.Parallel()

	task := NavigationTask{URL: "https://example.com"}
	f := NewTaskFailure(task, FailureNavigationTimeout, errors.New("page 3 did not load"), 40)
	if f.ReasonText != "navigation_timeout" || f.Message != "page 3 did not load" || f.RecordsKept != 40 {
		t.Errorf("unexpected failure %+v", f)
	}

	f = NewTaskFailure(task, FailureUnknown, nil, 0)
	if f.Message != "" {
		t.Errorf("nil error should give empty message, got %q", f.Message)
	}
}
