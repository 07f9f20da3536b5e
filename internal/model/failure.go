package model

// FailureReason classifies why a task failed.
type FailureReason int

const (
	// FailureUnknown is any failure that does not fit another reason.
	FailureUnknown FailureReason = iota

	// FailureFilterNotFound means no dropdown offered the desired label.
	FailureFilterNotFound

	// FailureFilterClickRejected means the option was present but could not
	// be activated, even through the script click fallback.
	FailureFilterClickRejected

	// FailureNavigationTimeout means a page or control did not settle in time.
	FailureNavigationTimeout

	// FailureNavigationFailed means the page could not be opened or advanced.
	FailureNavigationFailed

	// FailureSessionLost means the browser session itself went away.
	FailureSessionLost

	// FailureDisallowed means robots.txt disallows the task URL.
	FailureDisallowed
)

// String returns the stable name of the reason, used in reports and the
// run history database.
func (r FailureReason) String() string {
	switch r {
	case FailureFilterNotFound:
		return "filter_not_found"
	case FailureFilterClickRejected:
		return "filter_click_rejected"
	case FailureNavigationTimeout:
		return "navigation_timeout"
	case FailureNavigationFailed:
		return "navigation_failed"
	case FailureSessionLost:
		return "session_lost"
	case FailureDisallowed:
		return "disallowed"
	default:
		return "unknown"
	}
}

// ParseFailureReason is the inverse of FailureReason.String.
// Unrecognized names map to FailureUnknown.
func ParseFailureReason(s string) FailureReason {
	for r := FailureUnknown; r <= FailureDisallowed; r++ {
		if r.String() == s {
			return r
		}
	}
	return FailureUnknown
}

// TaskFailure is a recorded, non-fatal failure of one task.
type TaskFailure struct {
	// Task is the task that failed.
	Task NavigationTask `json:"task"`

	// Reason classifies the failure.
	Reason FailureReason `json:"-"`

	// ReasonText is Reason.String(), kept for serialization.
	ReasonText string `json:"reason"`

	// Message is the underlying error text.
	Message string `json:"message"`

	// RecordsKept is the number of records the task produced before failing.
	// Those records are part of the run output.
	RecordsKept int `json:"records_kept"`
}

// NewTaskFailure builds a TaskFailure from an error.
func NewTaskFailure(task NavigationTask, reason FailureReason, err error, kept int) TaskFailure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return TaskFailure{
		Task:        task,
		Reason:      reason,
		ReasonText:  reason.String(),
		Message:     msg,
		RecordsKept: kept,
	}
}
