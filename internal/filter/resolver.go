package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/rankcrawl/internal/render"
)

// DefaultSettleTimeout bounds each wait for a dropdown to open or for a
// selection to register.
const DefaultSettleTimeout = 5 * time.Second

// Selectors locate the parts of a dropdown control.
type Selectors struct {
	// Dropdown matches each candidate control on the page.
	Dropdown string `yaml:"dropdown,omitempty"`

	// Head matches the clickable head inside a candidate. Its text shows
	// the current selection.
	Head string `yaml:"head,omitempty"`

	// Options matches the option items inside a candidate.
	Options string `yaml:"options,omitempty"`

	// Inert matches an element that closes an open dropdown when clicked.
	Inert string `yaml:"inert,omitempty"`
}

// DefaultSelectors returns the selectors used by ShanghaiRanking pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Dropdown: "div.rank-select",
		Head:     ".head-bg",
		Options:  "ul.options li",
		Inert:    "body",
	}
}

// withDefaults fills empty fields from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.Dropdown == "" {
		s.Dropdown = d.Dropdown
	}
	if s.Head == "" {
		s.Head = d.Head
	}
	if s.Options == "" {
		s.Options = d.Options
	}
	if s.Inert == "" {
		s.Inert = d.Inert
	}
	return s
}

// Resolver selects a labelled option among the dropdowns of a page.
type Resolver struct {
	selectors     Selectors
	settleTimeout time.Duration
	verify        bool
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSelectors overrides the dropdown selectors. Empty fields keep their
// defaults.
func WithSelectors(s Selectors) Option {
	return func(r *Resolver) {
		r.selectors = s.withDefaults()
	}
}

// WithSettleTimeout bounds the waits for options to appear and for a
// selection to register.
func WithSettleTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.settleTimeout = d
		}
	}
}

// WithVerifySelection controls whether a click counts only once the
// dropdown head shows the selected label. It is on by default; turn it off
// for controls whose head never reflects the selection.
func WithVerifySelection(verify bool) Option {
	return func(r *Resolver) {
		r.verify = verify
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		selectors:     DefaultSelectors(),
		settleTimeout: DefaultSettleTimeout,
		verify:        true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve selects the option labelled desiredLabel in the first dropdown
// that offers it. It returns ErrNotFound when no dropdown does and
// ErrClickRejected when the option could not be activated. Any other error
// comes from the session itself (lost session, cancelled context).
func (r *Resolver) Resolve(ctx context.Context, s render.Session, desiredLabel string) error {
	want := normalize(desiredLabel)
	if want == "" {
		return fmt.Errorf("%w: empty label", ErrNotFound)
	}

	candidates, err := s.FindAll(ctx, r.selectors.Dropdown)
	if err != nil {
		return err
	}
	r.logger.Debug("probing dropdowns", "label", want, "candidates", len(candidates))

	for i, cand := range candidates {
		option, err := r.probe(ctx, s, cand, want)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			r.logger.Debug("skipping dropdown", "index", i, "error", err)
			r.close(ctx, s)
			continue
		}
		if option == nil {
			r.close(ctx, s)
			continue
		}

		r.logger.Debug("label found", "index", i, "label", want)
		return r.selectOption(ctx, s, cand, option, want)
	}

	return fmt.Errorf("%w: %q in %d dropdown(s)", ErrNotFound, desiredLabel, len(candidates))
}

// probe opens cand and returns its option labelled want, or nil when the
// candidate does not offer it.
func (r *Resolver) probe(ctx context.Context, s render.Session, cand render.Element, want string) (render.Element, error) {
	head, err := render.FindOne(ctx, cand, r.selectors.Head)
	if err != nil {
		return nil, err
	}
	if err := head.Click(ctx); err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		if err := head.ScriptClick(ctx); err != nil {
			return nil, err
		}
	}

	var options []render.Element
	err = s.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		options, err = cand.FindAll(ctx, r.selectors.Options)
		if err != nil {
			return false, err
		}
		return len(options) > 0, nil
	}, r.settleTimeout)
	if err != nil {
		return nil, err
	}

	for _, opt := range options {
		text, err := opt.Text(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			continue
		}
		if normalize(text) == want {
			return opt, nil
		}
	}
	return nil, nil
}

// selectOption clicks option natively and, if that fails or does not
// register, once more through script execution.
func (r *Resolver) selectOption(ctx context.Context, s render.Session, cand, option render.Element, want string) error {
	err := option.Click(ctx)
	if err == nil && r.registered(ctx, s, cand, want) {
		return nil
	}
	if err != nil && fatal(ctx, err) {
		return err
	}
	r.logger.Debug("direct click did not register, retrying with script", "label", want, "error", err)

	err = option.ScriptClick(ctx)
	if err == nil && r.registered(ctx, s, cand, want) {
		return nil
	}
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		return fmt.Errorf("%w: %q: %w", ErrClickRejected, want, err)
	}
	return fmt.Errorf("%w: %q not shown as selected after %s", ErrClickRejected, want, r.settleTimeout)
}

// registered waits until the candidate head shows exactly want. A head
// that merely contains want, such as "TOP 100" for "TOP", does not count.
func (r *Resolver) registered(ctx context.Context, s render.Session, cand render.Element, want string) bool {
	if !r.verify {
		return true
	}
	err := s.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		head, err := render.FindOne(ctx, cand, r.selectors.Head)
		if err != nil {
			return false, ignoreTransient(err)
		}
		text, err := head.Text(ctx)
		if err != nil {
			return false, ignoreTransient(err)
		}
		return normalize(text) == want, nil
	}, r.settleTimeout)
	return err == nil
}

// close clicks the inert element so an open dropdown collapses.
func (r *Resolver) close(ctx context.Context, s render.Session) {
	inert, err := render.FindFirst(ctx, s, r.selectors.Inert)
	if err != nil {
		r.logger.Debug("no inert element to close dropdown", "error", err)
		return
	}
	if err := inert.Click(ctx); err != nil {
		r.logger.Debug("closing dropdown failed", "error", err)
	}
}

// normalize trims s, collapses inner whitespace runs and applies NFC.
func normalize(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// fatal reports whether err must stop the resolver instead of moving on
// to the next candidate.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, render.ErrSessionLost) ||
		errors.Is(err, render.ErrSessionClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ignoreTransient swallows errors caused by a re-render in progress so a
// wait keeps polling.
func ignoreTransient(err error) error {
	if errors.Is(err, render.ErrElementNotFound) || errors.Is(err, render.ErrStaleElement) {
		return nil
	}
	return err
}
