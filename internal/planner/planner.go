// Package planner turns a ranking landing page into the list of
// navigation tasks a crawl has to process.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/render"
)

// ErrEmptyPlan is returned when the landing page lists no subjects.
var ErrEmptyPlan = errors.New("landing page lists no subjects")

// DefaultSettleTimeout bounds the wait for the subject list to render.
const DefaultSettleTimeout = 10 * time.Second

// Selectors locate the subject hierarchy on a landing page.
type Selectors struct {
	// Item matches each subject group.
	Item string `yaml:"item,omitempty"`

	// Category matches the group title inside an item.
	Category string `yaml:"category,omitempty"`

	// Link matches the subject links inside an item.
	Link string `yaml:"link,omitempty"`
}

// DefaultSelectors returns the selectors of the GRAS landing page.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:     "div.subject-container div.subject-item",
		Category: ".subject-category .subject-title",
		Link:     ".subject-list a.subj-link",
	}
}

// WithDefaults returns s with empty fields filled from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.Item == "" {
		s.Item = d.Item
	}
	if s.Category == "" {
		s.Category = d.Category
	}
	if s.Link == "" {
		s.Link = d.Link
	}
	return s
}

// Planner reads the category hierarchy of a landing page.
type Planner struct {
	selectors     Selectors
	settleTimeout time.Duration
	logger        *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithSelectors overrides the hierarchy selectors.
func WithSelectors(s Selectors) Option {
	return func(p *Planner) {
		p.selectors = s.WithDefaults()
	}
}

// WithSettleTimeout bounds the wait for the subject list.
func WithSettleTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.settleTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		selectors:     DefaultSelectors(),
		settleTimeout: DefaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Plan opens landingURL and returns one task per subject link, in page
// order. Every task carries filter. Items without a readable category and
// links without an href are skipped and logged.
func (p *Planner) Plan(ctx context.Context, s render.Session, landingURL string, filter *model.FilterTarget) ([]model.NavigationTask, error) {
	if err := s.Open(ctx, landingURL); err != nil {
		return nil, fmt.Errorf("open landing page: %w", err)
	}

	var items []render.Element
	err := s.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		var err error
		items, err = s.FindAll(ctx, p.selectors.Item)
		return len(items) > 0, err
	}, p.settleTimeout)
	if err != nil {
		if errors.Is(err, render.ErrWaitTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPlan, landingURL)
		}
		return nil, err
	}

	base, err := url.Parse(s.URL())
	if err != nil || !base.IsAbs() {
		if base, err = url.Parse(landingURL); err != nil {
			return nil, fmt.Errorf("invalid landing url %q: %w", landingURL, err)
		}
	}

	var tasks []model.NavigationTask
	for i, item := range items {
		category, err := p.category(ctx, item)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			p.logger.Warn("skipping subject item without category", "index", i, "error", err)
			continue
		}

		links, err := item.FindAll(ctx, p.selectors.Link)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			p.logger.Warn("skipping subject item with unreadable links", "category", category, "error", err)
			continue
		}

		for _, link := range links {
			task, ok, err := p.task(ctx, base, category, link, filter)
			if err != nil {
				return nil, err
			}
			if ok {
				tasks = append(tasks, task)
			}
		}
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPlan, landingURL)
	}
	p.logger.Info("planned tasks", "landing", landingURL, "tasks", len(tasks))
	return tasks, nil
}

func (p *Planner) category(ctx context.Context, item render.Element) (string, error) {
	el, err := render.FindOne(ctx, item, p.selectors.Category)
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty category title", render.ErrElementNotFound)
	}
	return text, nil
}

// task builds the task of one subject link. The boolean is false when the
// link was skipped.
func (p *Planner) task(ctx context.Context, base *url.URL, category string, link render.Element, filter *model.FilterTarget) (model.NavigationTask, bool, error) {
	label, err := link.Text(ctx)
	if err != nil {
		if fatal(err) {
			return model.NavigationTask{}, false, err
		}
		p.logger.Warn("skipping unreadable subject link", "category", category, "error", err)
		return model.NavigationTask{}, false, nil
	}
	label = strings.TrimSpace(label)

	href, ok, err := link.Attribute(ctx, "href")
	if err != nil && fatal(err) {
		return model.NavigationTask{}, false, err
	}
	href = strings.TrimSpace(href)
	if err != nil || !ok || href == "" {
		p.logger.Warn("skipping subject link without href", "category", category, "subcategory", label)
		return model.NavigationTask{}, false, nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		p.logger.Warn("skipping subject link with invalid href", "category", category, "subcategory", label, "href", href)
		return model.NavigationTask{}, false, nil
	}

	return model.NavigationTask{
		Category:    category,
		Subcategory: label,
		URL:         base.ResolveReference(ref).String(),
		Filter:      filter,
	}, true, nil
}

// Flat returns the single task of a source without a category hierarchy.
func Flat(targetURL string, filter *model.FilterTarget) []model.NavigationTask {
	return []model.NavigationTask{{URL: targetURL, Filter: filter}}
}

func fatal(err error) bool {
	return errors.Is(err, render.ErrSessionLost) ||
		errors.Is(err, render.ErrSessionClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
