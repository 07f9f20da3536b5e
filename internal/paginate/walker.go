package paginate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/render"
)

// DefaultPageTimeout bounds the wait for the next page to render.
const DefaultPageTimeout = 15 * time.Second

// Mode selects how a walker reaches further results.
type Mode int

const (
	// ModeNext follows the "next page" control, extracting every page.
	ModeNext Mode = iota

	// ModeLoadMore clicks a "load more" button until it disappears, then
	// extracts the expanded list once.
	ModeLoadMore
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == ModeLoadMore {
		return "load-more"
	}
	return "next"
}

// ParseMode parses a configuration name. The empty string is ModeNext.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "next", "pages":
		return ModeNext, nil
	case "load-more", "load_more", "loadmore":
		return ModeLoadMore, nil
	default:
		return ModeNext, fmt.Errorf("unknown pagination mode %q", s)
	}
}

// Stats counts what a walker did.
type Stats struct {
	// Pages is the number of result pages extracted (or load-more
	// expansions plus one).
	Pages int

	// Records is the number of records yielded.
	Records int

	// Skips lists the rows that were left out.
	Skips []model.ExtractionSkip

	// Truncated is true when the page cap ended the walk early.
	Truncated bool
}

// Walker extracts records page by page.
type Walker struct {
	selectors   Selectors
	mode        Mode
	pageTimeout time.Duration
	maxPages    int
	limiter     *rate.Limiter
	logger      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Walker.
type Option func(*Walker)

// WithSelectors overrides the table selectors. Empty fields keep their
// defaults.
func WithSelectors(s Selectors) Option {
	return func(w *Walker) {
		w.selectors = s.WithDefaults()
	}
}

// WithMode sets the pagination mode.
func WithMode(m Mode) Option {
	return func(w *Walker) {
		w.mode = m
	}
}

// WithPageTimeout bounds the wait for each page transition.
func WithPageTimeout(d time.Duration) Option {
	return func(w *Walker) {
		if d > 0 {
			w.pageTimeout = d
		}
	}
}

// WithMaxPages caps the number of pages a walk visits. Zero means no cap.
func WithMaxPages(n int) Option {
	return func(w *Walker) {
		if n >= 0 {
			w.maxPages = n
		}
	}
}

// WithLimiter paces page transitions. A limiter shared between walkers
// paces them together.
func WithLimiter(l *rate.Limiter) Option {
	return func(w *Walker) {
		w.limiter = l
	}
}

// WithPageDelay paces page transitions to at most one per d.
func WithPageDelay(d time.Duration) Option {
	return func(w *Walker) {
		if d > 0 {
			w.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// NewWalker creates a Walker.
func NewWalker(opts ...Option) *Walker {
	w := &Walker{
		selectors:   DefaultSelectors(),
		pageTimeout: DefaultPageTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Stats returns the counters accumulated by the walks of w.
func (w *Walker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Skips = append([]model.ExtractionSkip(nil), w.stats.Skips...)
	return s
}

// Walk returns the records of every page reachable from the current page
// of s, tagged with tag. The sequence is lazy: a page is advanced only
// once all records of the previous one were consumed. It ends when the
// next control is absent or disabled. A failure to advance is yielded
// once as the last element; records yielded before it stay valid.
//
// The sequence can be iterated only once. Later iterations yield
// ErrWalkConsumed.
func (w *Walker) Walk(ctx context.Context, s render.Session, tag model.TaskTag) iter.Seq2[model.RankingRecord, error] {
	var consumed atomic.Bool
	return func(yield func(model.RankingRecord, error) bool) {
		if consumed.Swap(true) {
			yield(model.RankingRecord{}, ErrWalkConsumed)
			return
		}
		if w.mode == ModeLoadMore {
			w.walkLoadMore(ctx, s, tag, yield)
			return
		}
		w.walkPages(ctx, s, tag, yield)
	}
}

func (w *Walker) walkPages(ctx context.Context, s render.Session, tag model.TaskTag, yield func(model.RankingRecord, error) bool) {
	for page := 1; ; page++ {
		if !w.emitPage(ctx, s, tag, page, yield) {
			return
		}

		next, ok, err := w.nextControl(ctx, s)
		if err != nil {
			yield(model.RankingRecord{}, err)
			return
		}
		if !ok {
			w.logger.Debug("last page reached", "task", tag, "pages", page)
			return
		}
		if w.maxPages > 0 && page >= w.maxPages {
			w.truncate(tag, page)
			return
		}

		if err := w.advance(ctx, s, next, page+1); err != nil {
			yield(model.RankingRecord{}, err)
			return
		}
	}
}

func (w *Walker) walkLoadMore(ctx context.Context, s render.Session, tag model.TaskTag, yield func(model.RankingRecord, error) bool) {
	var loadErr error
	pages := 1
	for {
		buttons, err := s.FindAll(ctx, w.selectors.LoadMore)
		if err != nil {
			loadErr = err
			break
		}
		if len(buttons) == 0 {
			break
		}
		if w.maxPages > 0 && pages >= w.maxPages {
			w.truncate(tag, pages)
			break
		}
		if err := w.loadMore(ctx, s, buttons[0], pages+1); err != nil {
			loadErr = err
			break
		}
		pages++
	}

	w.mu.Lock()
	w.stats.Pages += pages - 1
	w.mu.Unlock()

	if !w.emitPage(ctx, s, tag, pages, yield) {
		return
	}
	if loadErr != nil {
		yield(model.RankingRecord{}, loadErr)
	}
}

// emitPage extracts the current page and yields its records. It returns
// false when the walk must stop.
func (w *Walker) emitPage(ctx context.Context, s render.Session, tag model.TaskTag, page int, yield func(model.RankingRecord, error) bool) bool {
	records, skips, err := Extract(ctx, s, w.selectors, tag)
	for i := range skips {
		skips[i].Page = page
	}

	w.mu.Lock()
	w.stats.Pages++
	w.stats.Records += len(records)
	w.stats.Skips = append(w.stats.Skips, skips...)
	w.mu.Unlock()

	w.logger.Debug("page extracted", "task", tag, "page", page, "records", len(records), "skipped", len(skips))

	for _, rec := range records {
		if !yield(rec, nil) {
			return false
		}
	}
	if err != nil {
		yield(model.RankingRecord{}, err)
		return false
	}
	return true
}

func (w *Walker) truncate(tag model.TaskTag, pages int) {
	w.mu.Lock()
	w.stats.Truncated = true
	w.mu.Unlock()
	w.logger.Warn("page limit reached, stopping walk", "task", tag, "max_pages", w.maxPages, "pages", pages)
}

// nextControl returns the enabled next control, or false when the current
// page is the last one.
func (w *Walker) nextControl(ctx context.Context, s render.Session) (render.Element, bool, error) {
	controls, err := s.FindAll(ctx, w.selectors.Next)
	if err != nil {
		return nil, false, fmt.Errorf("find next control: %w", err)
	}
	if len(controls) == 0 {
		return nil, false, nil
	}
	next := controls[0]

	class, _, err := next.Attribute(ctx, "class")
	if err != nil {
		return nil, false, fmt.Errorf("read next control: %w", err)
	}
	if hasClass(class, w.selectors.DisabledClass) {
		return nil, false, nil
	}
	if disabled, ok, err := next.Attribute(ctx, "aria-disabled"); err == nil && ok && disabled == "true" {
		return nil, false, nil
	}
	return next, true, nil
}

// advance clicks next and waits until the table shows a different page.
func (w *Walker) advance(ctx context.Context, s render.Session, next render.Element, page int) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	before, err := w.signature(ctx, s)
	if err != nil {
		return err
	}
	if err := click(ctx, next); err != nil {
		return fmt.Errorf("%w: page %d: %w", ErrNavigationFailed, page, err)
	}

	err = s.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		after, err := w.signature(ctx, s)
		if err != nil {
			return false, transient(err)
		}
		return after != before, nil
	}, w.pageTimeout)
	if errors.Is(err, render.ErrWaitTimeout) {
		return fmt.Errorf("%w: page %d: %w", ErrNavigationTimeout, page, err)
	}
	return err
}

// loadMore clicks the load-more button and waits until more rows are
// shown or the button is gone.
func (w *Walker) loadMore(ctx context.Context, s render.Session, button render.Element, page int) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	rows, err := s.FindAll(ctx, w.selectors.Row)
	if err != nil {
		return err
	}
	before := len(rows)

	if err := click(ctx, button); err != nil {
		return fmt.Errorf("%w: load more %d: %w", ErrNavigationFailed, page, err)
	}

	err = s.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		rows, err := s.FindAll(ctx, w.selectors.Row)
		if err != nil {
			return false, transient(err)
		}
		if len(rows) > before {
			return true, nil
		}
		buttons, err := s.FindAll(ctx, w.selectors.LoadMore)
		if err != nil {
			return false, transient(err)
		}
		return len(buttons) == 0, nil
	}, w.pageTimeout)
	if errors.Is(err, render.ErrWaitTimeout) {
		return fmt.Errorf("%w: load more %d: %w", ErrNavigationTimeout, page, err)
	}
	return err
}

// signature identifies the page currently shown: its URL, row count and
// the text of its first row.
func (w *Walker) signature(ctx context.Context, s render.Session) (string, error) {
	rows, err := s.FindAll(ctx, w.selectors.Row)
	if err != nil {
		return "", err
	}
	first := ""
	if len(rows) > 0 {
		if first, err = rows[0].Text(ctx); err != nil {
			return "", err
		}
	}
	return s.URL() + "|" + strconv.Itoa(len(rows)) + "|" + strings.TrimSpace(first), nil
}

// click tries a native click, then a script click.
func click(ctx context.Context, el render.Element) error {
	err := el.Click(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, render.ErrSessionLost) {
		return err
	}
	return el.ScriptClick(ctx)
}

func transient(err error) error {
	if errors.Is(err, render.ErrStaleElement) || errors.Is(err, render.ErrElementNotFound) {
		return nil
	}
	return err
}
