package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/rankcrawl/internal/filter"
	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/paginate"
	"github.com/nao1215/rankcrawl/internal/planner"
	"github.com/nao1215/rankcrawl/internal/render"
)

// ErrRunAborted wraps the error that stopped a run before all tasks were
// attempted.
var ErrRunAborted = errors.New("run aborted")

// Source describes one crawl target.
type Source struct {
	// Name identifies the source in reports and the run history.
	Name string

	// URL is the landing page of a categorized source, or the ranking
	// page of a flat one.
	URL string

	// Categorized sources are planned from their landing page; flat
	// sources are a single task.
	Categorized bool

	// Filter is the option to select on every task page. Optional.
	Filter *model.FilterTarget
}

// Orchestrator runs tasks on a bounded pool of render sessions.
type Orchestrator struct {
	factory         render.Factory
	pipelineFactory func() *Pipeline
	planner         *planner.Planner
	workers         int
	progress        func(report *model.TaskReport, done, total int)
	logger          *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithWorkers sets how many tasks run at once, each on its own session.
// Default is 1, which processes tasks strictly in order.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPlanner sets the planner used for categorized sources.
func WithPlanner(p *planner.Planner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.planner = p
	}
}

// WithProgress registers a callback invoked after each task. It is called
// from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(report *model.TaskReport, done, total int)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// NewOrchestrator creates an Orchestrator. pipelineFactory is called once
// per task so no step state leaks between tasks.
func NewOrchestrator(factory render.Factory, pipelineFactory func() *Pipeline, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		factory:         factory,
		pipelineFactory: pipelineFactory,
		workers:         1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.planner == nil {
		o.planner = planner.New(planner.WithLogger(o.logger))
	}
	return o
}

// RunSource plans src and runs its tasks. A planning failure returns an
// empty result together with the error.
func (o *Orchestrator) RunSource(ctx context.Context, src Source) (*model.RunResult, error) {
	if !src.Categorized {
		return o.Run(ctx, src.Name, planner.Flat(src.URL, src.Filter))
	}

	tasks, err := o.plan(ctx, src)
	if err != nil {
		result := model.NewRunResult(src.Name)
		result.FinishedAt = time.Now()
		return result, fmt.Errorf("plan %s: %w", src.Name, err)
	}
	return o.Run(ctx, src.Name, tasks)
}

func (o *Orchestrator) plan(ctx context.Context, src Source) ([]model.NavigationTask, error) {
	s, err := o.factory.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			o.logger.Debug("closing planner session failed", "error", err)
		}
	}()
	return o.planner.Plan(ctx, s, src.URL, src.Filter)
}

// Run attempts every task exactly once and returns the aggregate result.
//
// Task failures are recorded in the result and never stop other tasks.
// Records of a task that failed midway are kept. result.Records follows
// task order regardless of the number of workers.
//
// Losing a render session, failing to provision one or failing to write a
// record aborts the run: tasks not yet started are listed in
// result.Abandoned and the error wraps ErrRunAborted. Cancelling ctx
// abandons the remaining tasks the same way. The result is never nil.
func (o *Orchestrator) Run(ctx context.Context, source string, tasks []model.NavigationTask) (*model.RunResult, error) {
	o.logger.Info("starting run",
		"source", source,
		"tasks", len(tasks),
		"workers", o.workers,
	)

	result := model.NewRunResult(source)
	reports := make([]*model.TaskReport, len(tasks))

	pool := newSessionPool(o.factory)
	defer func() {
		if err := pool.closeAll(); err != nil {
			o.logger.Warn("closing sessions failed", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu       sync.Mutex
		done     int
		abortErr error
	)
	abort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
		cancel(err)
	}

	g := new(errgroup.Group)
	g.SetLimit(o.workers)

	for i, task := range tasks {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}

			s, err := pool.acquire(runCtx)
			if err != nil {
				if runCtx.Err() == nil {
					abort(fmt.Errorf("provision session: %w", err))
				}
				return nil
			}

			o.logger.Info("processing task",
				"task", task.Tag(),
				"index", i+1,
				"total", len(tasks),
			)

			report := o.runTask(runCtx, s, task)
			broken := report.Failure != nil && report.Failure.Reason == model.FailureSessionLost
			pool.release(s, broken)

			mu.Lock()
			reports[i] = report
			done++
			n := done
			mu.Unlock()

			if o.progress != nil {
				o.progress(report, n, len(tasks))
			}
			if fatal(report.Err) {
				abort(report.Err)
			}
			return nil
		})
	}

	// Workers never return errors; failures live in the reports.
	_ = g.Wait()

	for i, rep := range reports {
		if rep == nil {
			result.Abandoned = append(result.Abandoned, tasks[i])
			continue
		}
		result.Reports = append(result.Reports, rep)
		result.Records = append(result.Records, rep.Records...)
		if rep.Failure != nil {
			result.Failures = append(result.Failures, *rep.Failure)
		}
	}
	result.FinishedAt = time.Now()

	summary := result.Summary()
	o.logger.Info("run complete",
		"source", source,
		"records", summary.Records,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"abandoned", summary.Abandoned,
		"sessions", pool.size(),
		"elapsed", summary.Duration,
	)

	if abortErr != nil {
		return result, fmt.Errorf("%w: %w", ErrRunAborted, abortErr)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%w: %w", ErrRunAborted, err)
	}
	return result, nil
}

// runTask executes the pipeline of one task and records its failure.
func (o *Orchestrator) runTask(ctx context.Context, s render.Session, task model.NavigationTask) *model.TaskReport {
	report := model.NewTaskReport(task)
	err := o.pipelineFactory().Execute(ctx, s, report)
	if err == nil {
		o.logger.Info("task completed",
			"task", task.Tag(),
			"records", len(report.Records),
			"pages", report.Pages,
		)
		return report
	}

	// A task interrupted by an aborted run is charged with the cause.
	classified := err
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			classified = fmt.Errorf("%w (%w)", err, cause)
		}
	}

	f := model.NewTaskFailure(task, Classify(classified), err, len(report.Records))
	report.Failure = &f
	report.Err = err

	o.logger.Warn("task failed",
		"task", task.Tag(),
		"reason", f.ReasonText,
		"records_kept", f.RecordsKept,
		"error", err,
	)
	return report
}

// Classify maps a task error to its failure reason.
func Classify(err error) model.FailureReason {
	switch {
	case err == nil:
		return model.FailureUnknown
	case errors.Is(err, render.ErrSessionLost), errors.Is(err, render.ErrSessionClosed):
		return model.FailureSessionLost
	case errors.Is(err, ErrDisallowed):
		return model.FailureDisallowed
	case errors.Is(err, filter.ErrNotFound):
		return model.FailureFilterNotFound
	case errors.Is(err, filter.ErrClickRejected):
		return model.FailureFilterClickRejected
	case errors.Is(err, paginate.ErrNavigationTimeout),
		errors.Is(err, render.ErrWaitTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return model.FailureNavigationTimeout
	case errors.Is(err, paginate.ErrNavigationFailed), errors.Is(err, ErrOpenFailed):
		return model.FailureNavigationFailed
	default:
		return model.FailureUnknown
	}
}

// fatal reports whether err must abort the whole run.
func fatal(err error) bool {
	return errors.Is(err, render.ErrSessionLost) ||
		errors.Is(err, render.ErrSessionClosed) ||
		errors.Is(err, ErrSinkFailed)
}
