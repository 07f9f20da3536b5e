package model

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrRelativeURL is returned by NavigationTask.Validate when the task URL
// is not absolute.
var ErrRelativeURL = errors.New("task url must be absolute")

// FilterTarget names the option that must be selected on a page before
// extraction is valid, e.g. "High Quality Research" or "TOP".
type FilterTarget struct {
	DesiredLabel string `json:"desired_label" yaml:"label"`
}

// NewFilterTarget returns a FilterTarget for label, or nil when label is
// empty (no filter step required).
func NewFilterTarget(label string) *FilterTarget {
	if label == "" {
		return nil
	}
	return &FilterTarget{DesiredLabel: label}
}

// NavigationTask is one unit of crawl work.
type NavigationTask struct {
	// Category is empty for flat sources.
	Category string `json:"category,omitempty"`

	// Subcategory is empty for flat sources.
	Subcategory string `json:"subcategory,omitempty"`

	// URL is the absolute page URL to open.
	URL string `json:"url"`

	// Filter is the optional dropdown option to select before extraction.
	Filter *FilterTarget `json:"filter,omitempty"`
}

// Tag returns the hierarchy tag for records produced by this task.
func (t NavigationTask) Tag() TaskTag {
	return TaskTag{Category: t.Category, Subcategory: t.Subcategory}
}

// String returns a short label used in logs.
func (t NavigationTask) String() string {
	return fmt.Sprintf("%s <%s>", t.Tag(), t.URL)
}

// Validate checks that the task URL is absolute.
func (t NavigationTask) Validate() error {
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("invalid task url %q: %w", t.URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrRelativeURL, t.URL)
	}
	return nil
}
