// Package database stores the history of crawl runs in SQLite.
//
// Each run keeps its records in extraction order together with its task
// failures, so that two runs of the same source can be compared later
// without the CSV files that were written at the time.
//
// The store uses modernc.org/sqlite, a CGO-free driver, with WAL enabled
// and a single open connection.
package database
