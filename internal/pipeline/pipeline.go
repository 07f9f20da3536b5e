package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/render"
)

// Step is one stage of processing a task.
type Step interface {
	// Do executes the step on session s. Records and counters go into
	// report; a returned error fails the task.
	Do(ctx context.Context, s render.Session, report *model.TaskReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order for one task.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps running later steps after a failure.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to run the remaining steps
// after one fails. The first error is still recorded in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order. Cancellation is checked between steps;
// each step is responsible for its own waits. The first step error is
// stored in report.Err and returned, unless continueOnError is set, in
// which case Execute returns nil.
func (p *Pipeline) Execute(ctx context.Context, s render.Session, report *model.TaskReport) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"task", report.Task.Tag(),
				"reason", ctx.Err(),
			)
			if report.Err == nil {
				report.Err = ctx.Err()
			}
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"task", report.Task.Tag(),
		)

		if err := step.Do(ctx, s, report); err != nil {
			p.logger.Warn("step failed",
				"step", step.Name(),
				"task", report.Task.Tag(),
				"error", err,
			)
			if report.Err == nil {
				report.Err = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
