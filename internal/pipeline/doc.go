// Package pipeline runs crawl tasks.
//
// A Pipeline executes the steps of one task (open the page, select the
// filter, walk the result pages) in order on one render session, and stops
// at the first failing step. The Orchestrator runs a list of tasks on a
// bounded pool of sessions, records per-task failures instead of
// propagating them, and aborts the remaining tasks only when a session is
// lost.
package pipeline
