package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/rankcrawl/internal/model"
)

// FileName is the name of the run history database inside its directory.
const FileName = "rankcrawl.db"

var (
	// ErrNotFound is returned when the database file is missing and
	// CreateIfNotExists is false.
	ErrNotFound = errors.New("database not found")

	// ErrRunNotFound is returned when a run id does not exist.
	ErrRunNotFound = errors.New("run not found")
)

// RunDB stores the history of crawl runs: one row per run, plus the
// records and failures that run produced.
//
// A single database file holds every source so that runs of different
// sources can be listed together.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the run history database inside dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		record_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		abandoned_count INTEGER NOT NULL DEFAULT 0,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS records (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		subcategory TEXT NOT NULL DEFAULT '',
		university TEXT NOT NULL,
		ranking TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		category TEXT NOT NULL DEFAULT '',
		subcategory TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		filter TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		message TEXT,
		records_kept INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata is a stored run without its records.
type RunMetadata struct {
	// ID is the database id of the run.
	ID int64

	// Source is the source name the run crawled.
	Source string

	// StartedAt is when the run began.
	StartedAt time.Time

	// FinishedAt is when the run ended. Zero if it was never recorded.
	FinishedAt time.Time

	// Records is the number of stored records.
	Records int

	// Failures is the number of stored task failures.
	Failures int

	// Abandoned is the number of tasks never attempted.
	Abandoned int

	// Summary holds the run counters as computed at save time.
	Summary model.RunSummary
}

// SaveRun stores result and everything it produced in one transaction.
// It returns the id of the new run.
func (rdb *RunDB) SaveRun(ctx context.Context, result *model.RunResult) (int64, error) {
	if result == nil {
		return 0, errors.New("cannot save nil run result")
	}

	summaryJSON, err := json.Marshal(result.Summary())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize run summary: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (source, started_at, finished_at, record_count, failure_count, abandoned_count, summary)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		result.Source,
		formatTimestamp(result.StartedAt),
		formatTimestamp(result.FinishedAt),
		len(result.Records),
		len(result.Failures),
		len(result.Abandoned),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO records (run_id, seq, category, subcategory, university, ranking)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recStmt.Close()

	for i, rec := range result.Records {
		if _, err := recStmt.ExecContext(ctx, runID, i, rec.Category, rec.Subcategory, rec.EntityName, rec.RankText); err != nil {
			return 0, fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	failStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO failures (run_id, category, subcategory, url, filter, reason, message, records_kept)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare failure insert: %w", err)
	}
	defer failStmt.Close()

	for _, f := range result.Failures {
		filter := ""
		if f.Task.Filter != nil {
			filter = f.Task.Filter.DesiredLabel
		}
		if _, err := failStmt.ExecContext(ctx, runID,
			f.Task.Category,
			f.Task.Subcategory,
			f.Task.URL,
			filter,
			f.Reason.String(),
			f.Message,
			f.RecordsKept,
		); err != nil {
			return 0, fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// ListSources returns the names of all sources with at least one run.
func (rdb *RunDB) ListSources(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, `SELECT DISTINCT source FROM runs ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

const runColumns = `id, source, started_at, finished_at, record_count, failure_count, abandoned_count, summary`

// GetRunHistory returns the runs of source, newest first.
func (rdb *RunDB) GetRunHistory(ctx context.Context, source string) ([]RunMetadata, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT `+runColumns+`
	FROM runs
	WHERE source = ?
	ORDER BY started_at DESC, id DESC
	`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var runs []RunMetadata
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// GetRun returns the metadata of one run.
func (rdb *RunDB) GetRun(ctx context.Context, id int64) (RunMetadata, error) {
	row := rdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	meta, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunMetadata{}, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return meta, err
}

// GetLatestRunIDs returns up to n run ids for source, newest first.
func (rdb *RunDB) GetLatestRunIDs(ctx context.Context, source string, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT id FROM runs
	WHERE source = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`, source, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest runs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetRunRecords returns the records of a run in their original order.
func (rdb *RunDB) GetRunRecords(ctx context.Context, id int64) ([]model.RankingRecord, error) {
	if _, err := rdb.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := rdb.db.QueryContext(ctx, `
	SELECT category, subcategory, university, ranking
	FROM records
	WHERE run_id = ?
	ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run records: %w", err)
	}
	defer rows.Close()

	records := make([]model.RankingRecord, 0)
	for rows.Next() {
		var rec model.RankingRecord
		if err := rows.Scan(&rec.Category, &rec.Subcategory, &rec.EntityName, &rec.RankText); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRunFailures returns the task failures of a run.
func (rdb *RunDB) GetRunFailures(ctx context.Context, id int64) ([]model.TaskFailure, error) {
	if _, err := rdb.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := rdb.db.QueryContext(ctx, `
	SELECT category, subcategory, url, filter, reason, message, records_kept
	FROM failures
	WHERE run_id = ?
	ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run failures: %w", err)
	}
	defer rows.Close()

	failures := make([]model.TaskFailure, 0)
	for rows.Next() {
		var (
			f       model.TaskFailure
			filter  string
			reason  string
			message sql.NullString
		)
		if err := rows.Scan(&f.Task.Category, &f.Task.Subcategory, &f.Task.URL, &filter, &reason, &message, &f.RecordsKept); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Task.Filter = model.NewFilterTarget(filter)
		f.Reason = model.ParseFailureReason(reason)
		f.ReasonText = f.Reason.String()
		f.Message = message.String
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// DeleteRun removes a run with its records and failures.
func (rdb *RunDB) DeleteRun(ctx context.Context, id int64) error {
	res, err := rdb.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunMetadata, error) {
	var (
		meta        RunMetadata
		started     string
		finished    sql.NullString
		summaryJSON sql.NullString
	)
	err := row.Scan(&meta.ID, &meta.Source, &started, &finished,
		&meta.Records, &meta.Failures, &meta.Abandoned, &summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return RunMetadata{}, err
	}
	if err != nil {
		return RunMetadata{}, fmt.Errorf("failed to scan run: %w", err)
	}

	meta.StartedAt = parseTimestamp(started)
	if finished.Valid {
		meta.FinishedAt = parseTimestamp(finished.String)
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		// A malformed summary leaves the zero value; the counters above
		// are authoritative.
		_ = json.Unmarshal([]byte(summaryJSON.String), &meta.Summary)
	}
	return meta, nil
}

// storedTimeLayout has fixed width so that text ordering of stored UTC
// times matches time ordering.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}

// timestampFormats lists the layouts accepted when reading timestamps back.
// More specific layouts come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when s matches no known layout.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
