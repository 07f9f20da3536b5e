package model

import "time"

// TaskReport accumulates everything one task produces while its pipeline
// steps execute.
type TaskReport struct {
	// Task is the task being processed.
	Task NavigationTask

	// Records holds the records extracted so far, in page order.
	Records []RankingRecord

	// Skips lists rows that were omitted during extraction.
	Skips []ExtractionSkip

	// Pages is the number of result pages visited.
	Pages int

	// PerformedSteps lists the names of steps that completed.
	PerformedSteps []string

	// Failure is set when a step failed.
	Failure *TaskFailure

	// Err is the error that caused Failure, kept for classification.
	Err error `json:"-"`
}

// NewTaskReport creates an empty report for task.
func NewTaskReport(task NavigationTask) *TaskReport {
	return &TaskReport{
		Task:    task,
		Records: make([]RankingRecord, 0),
	}
}

// AddRecord appends a record to the report.
func (r *TaskReport) AddRecord(rec RankingRecord) {
	r.Records = append(r.Records, rec)
}

// Failed reports whether the task recorded a failure.
func (r *TaskReport) Failed() bool {
	return r.Failure != nil
}

// RunResult is the aggregate output of one crawl run.
type RunResult struct {
	// Source is the configured source name, or the URL for ad-hoc runs.
	Source string `json:"source"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended.
	FinishedAt time.Time `json:"finished_at"`

	// Records is the best-effort union of all extracted records, in task order.
	Records []RankingRecord `json:"records"`

	// Failures lists the tasks that failed, fully or partially.
	Failures []TaskFailure `json:"failures"`

	// Reports holds the per-task reports in task order.
	Reports []*TaskReport `json:"-"`

	// Abandoned lists tasks that were never attempted because the run was
	// cancelled or lost its browser session.
	Abandoned []NavigationTask `json:"abandoned,omitempty"`
}

// NewRunResult creates an empty result for source.
func NewRunResult(source string) *RunResult {
	return &RunResult{
		Source:    source,
		StartedAt: time.Now(),
		Records:   make([]RankingRecord, 0),
		Failures:  make([]TaskFailure, 0),
	}
}

// RunSummary holds the counters shown in run reports.
type RunSummary struct {
	Source     string        `json:"source"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Tasks      int           `json:"tasks"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Abandoned  int           `json:"abandoned"`
	Records    int           `json:"records"`
	Pages      int           `json:"pages"`
	SkippedRow int           `json:"skipped_rows"`
}

// Summary computes the run counters.
func (r *RunResult) Summary() RunSummary {
	s := RunSummary{
		Source:    r.Source,
		StartedAt: r.StartedAt,
		Tasks:     len(r.Reports) + len(r.Abandoned),
		Failed:    len(r.Failures),
		Abandoned: len(r.Abandoned),
		Records:   len(r.Records),
	}
	if !r.FinishedAt.IsZero() {
		s.Duration = r.FinishedAt.Sub(r.StartedAt)
	}
	for _, rep := range r.Reports {
		if rep == nil {
			continue
		}
		s.Pages += rep.Pages
		s.SkippedRow += len(rep.Skips)
		if !rep.Failed() {
			s.Succeeded++
		}
	}
	return s
}
