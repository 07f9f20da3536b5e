// Package model defines the data structures shared by every stage of a
// ranking crawl.
//
// This package contains the following main types:
//   - RankingRecord: one extracted (category, subcategory, name, rank) row
//   - NavigationTask: one unit of crawl work produced by the planner
//   - TaskReport: the per-task accumulator passed through pipeline steps
//   - TaskFailure: a recorded, non-fatal failure of one task
//   - RunResult: the aggregate output of a crawl run
//
// All values are transient: they are created and consumed within a single
// run and only reach disk through a sink or the run history database.
package model
