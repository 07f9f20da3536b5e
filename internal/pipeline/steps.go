package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/rankcrawl/internal/filter"
	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/paginate"
	"github.com/nao1215/rankcrawl/internal/render"
	"github.com/nao1215/rankcrawl/internal/sink"
)

var (
	// ErrOpenFailed is returned when the task page could not be opened.
	ErrOpenFailed = errors.New("could not open task page")

	// ErrDisallowed is returned when the gate refuses the task URL.
	ErrDisallowed = errors.New("task url disallowed")

	// ErrSinkFailed is returned when a record could not be written to the
	// output sink. It aborts the run.
	ErrSinkFailed = errors.New("could not write record")
)

// Gate decides whether a URL may be crawled. *robots.Checker satisfies it.
type Gate interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// AllowStep refuses tasks whose URL the gate disallows. A gate that
// cannot answer is logged and the task proceeds.
type AllowStep struct {
	gate   Gate
	logger *slog.Logger
}

// NewAllowStep creates an AllowStep.
func NewAllowStep(gate Gate, logger *slog.Logger) *AllowStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AllowStep{gate: gate, logger: logger}
}

// Name returns the step name.
func (s *AllowStep) Name() string {
	return "allow"
}

// Do asks the gate about the task URL.
func (s *AllowStep) Do(ctx context.Context, _ render.Session, report *model.TaskReport) error {
	if s.gate == nil {
		return nil
	}
	ok, err := s.gate.Allowed(ctx, report.Task.URL)
	if err != nil {
		s.logger.Warn("robots.txt check failed, continuing", "task", report.Task.Tag(), "error", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDisallowed, report.Task.URL)
	}
	return nil
}

// OpenStep navigates the session to the task URL.
type OpenStep struct {
	logger *slog.Logger
}

// NewOpenStep creates an OpenStep.
func NewOpenStep(logger *slog.Logger) *OpenStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenStep{logger: logger}
}

// Name returns the step name.
func (s *OpenStep) Name() string {
	return "open"
}

// Do opens the task URL.
func (s *OpenStep) Do(ctx context.Context, session render.Session, report *model.TaskReport) error {
	if err := report.Task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	if err := session.Open(ctx, report.Task.URL); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, report.Task.URL, err)
	}
	s.logger.Debug("task page opened", "url", report.Task.URL)
	return nil
}

// FilterStep selects the task's filter option. Tasks without a filter
// pass through.
type FilterStep struct {
	resolver *filter.Resolver
}

// NewFilterStep creates a FilterStep. A nil resolver uses the defaults.
func NewFilterStep(resolver *filter.Resolver) *FilterStep {
	if resolver == nil {
		resolver = filter.New()
	}
	return &FilterStep{resolver: resolver}
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "filter"
}

// Do resolves the filter.
func (s *FilterStep) Do(ctx context.Context, session render.Session, report *model.TaskReport) error {
	if report.Task.Filter == nil {
		return nil
	}
	label := report.Task.Filter.DesiredLabel
	if err := s.resolver.Resolve(ctx, session, label); err != nil {
		return fmt.Errorf("select %q: %w", label, err)
	}
	return nil
}

// WalkStep extracts every result page into the report and, when a sink
// is set, streams each record into it.
type WalkStep struct {
	options []paginate.Option
	sink    sink.Sink
}

// NewWalkStep creates a WalkStep. Each Do builds a fresh walker from
// options.
func NewWalkStep(out sink.Sink, options ...paginate.Option) *WalkStep {
	return &WalkStep{options: options, sink: out}
}

// Name returns the step name.
func (s *WalkStep) Name() string {
	return "walk"
}

// Do walks the result pages. Records extracted before a failure stay in
// the report.
func (s *WalkStep) Do(ctx context.Context, session render.Session, report *model.TaskReport) error {
	w := paginate.NewWalker(s.options...)

	var walkErr error
	for rec, err := range w.Walk(ctx, session, report.Task.Tag()) {
		if err != nil {
			walkErr = err
			break
		}
		report.AddRecord(rec)
		if s.sink != nil {
			if err := s.sink.Append(ctx, rec); err != nil {
				walkErr = fmt.Errorf("%w: %w", ErrSinkFailed, err)
				break
			}
		}
	}

	stats := w.Stats()
	report.Pages = stats.Pages
	report.Skips = stats.Skips
	return walkErr
}

// DefaultPipelineConfig holds the settings of the standard task pipeline.
type DefaultPipelineConfig struct {
	// Resolver selects filter options. Nil uses the defaults.
	Resolver *filter.Resolver

	// WalkerOptions configure the pagination walker of each task.
	WalkerOptions []paginate.Option

	// Sink receives every record as it is extracted. Optional.
	Sink sink.Sink

	// Gate is consulted before each task page is opened. Optional.
	Gate Gate
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineResolver sets the filter resolver.
func WithPipelineResolver(r *filter.Resolver) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Resolver = r
	}
}

// WithPipelineWalkerOptions appends walker options.
func WithPipelineWalkerOptions(opts ...paginate.Option) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.WalkerOptions = append(c.WalkerOptions, opts...)
	}
}

// WithPipelineSink sets the record sink.
func WithPipelineSink(out sink.Sink) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Sink = out
	}
}

// WithPipelineGate checks every task URL with gate before opening it.
func WithPipelineGate(gate Gate) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Gate = gate
	}
}

// DefaultPipeline creates the open, filter and walk pipeline, preceded by
// an allow step when a gate is configured.
func DefaultPipeline(pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{}
	for _, opt := range configOpts {
		opt(cfg)
	}

	if cfg.Gate != nil {
		p.AddStep(NewAllowStep(cfg.Gate, p.logger))
	}
	p.AddSteps(
		NewOpenStep(p.logger),
		NewFilterStep(cfg.Resolver),
		NewWalkStep(cfg.Sink, cfg.WalkerOptions...),
	)
	return p
}
