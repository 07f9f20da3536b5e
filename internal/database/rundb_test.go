package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nao1215/rankcrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *RunDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleRun(source string, started time.Time) *model.RunResult {
	physics := model.NavigationTask{
		Category:    "Natural Sciences",
		Subcategory: "Physics",
		URL:         "https://example.com/subject/physics",
		Filter:      model.NewFilterTarget("TOP"),
	}
	chemistry := model.NavigationTask{
		Category:    "Natural Sciences",
		Subcategory: "Chemistry",
		URL:         "https://example.com/subject/chemistry",
		Filter:      model.NewFilterTarget("TOP"),
	}

	result := model.NewRunResult(source)
	result.StartedAt = started
	result.FinishedAt = started.Add(90 * time.Second)
	result.Records = []model.RankingRecord{
		{Category: "Natural Sciences", Subcategory: "Physics", EntityName: "Alpha University", RankText: "1"},
		{Category: "Natural Sciences", Subcategory: "Physics", EntityName: "Beta Institute", RankText: "2"},
		{Category: "Natural Sciences", Subcategory: "Chemistry", EntityName: "Gamma College", RankText: "101-150"},
	}
	result.Failures = []model.TaskFailure{
		model.NewTaskFailure(chemistry, model.FailureNavigationTimeout, errors.New("page 2 did not settle"), 1),
	}
	result.Reports = []*model.TaskReport{
		{Task: physics, Records: result.Records[:2], Pages: 1},
		{Task: chemistry, Records: result.Records[2:], Pages: 2, Failure: &result.Failures[0]},
	}
	return result
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		dbPath := filepath.Join(dbDir, FileName)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if _, err := db.SaveRun(context.Background(), sampleRun("gras-2024", time.Now())); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		_ = db.Close()

		reopened, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer reopened.Close()

		sources, err := reopened.ListSources(context.Background())
		if err != nil {
			t.Fatalf("ListSources failed: %v", err)
		}
		if diff := cmp.Diff([]string{"gras-2024"}, sources); diff != "" {
			t.Errorf("sources mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSaveRunRoundTrip(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC)
	run := sampleRun("gras-2024", started)

	id, err := db.SaveRun(ctx, run)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive run id, got %d", id)
	}

	t.Run("records keep their order", func(t *testing.T) {
		t.Parallel()

		got, err := db.GetRunRecords(ctx, id)
		if err != nil {
			t.Fatalf("GetRunRecords failed: %v", err)
		}
		if diff := cmp.Diff(run.Records, got); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failures are restored with their reason", func(t *testing.T) {
		t.Parallel()

		got, err := db.GetRunFailures(ctx, id)
		if err != nil {
			t.Fatalf("GetRunFailures failed: %v", err)
		}
		if diff := cmp.Diff(run.Failures, got); diff != "" {
			t.Errorf("failures mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("metadata carries counters and summary", func(t *testing.T) {
		t.Parallel()

		meta, err := db.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if !meta.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", meta.StartedAt, started)
		}
		if !meta.FinishedAt.Equal(run.FinishedAt) {
			t.Errorf("FinishedAt = %v, want %v", meta.FinishedAt, run.FinishedAt)
		}
		if meta.Records != 3 || meta.Failures != 1 || meta.Abandoned != 0 {
			t.Errorf("unexpected counters: %+v", meta)
		}
		want := run.Summary()
		if diff := cmp.Diff(want, meta.Summary, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSaveRunEmpty(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.SaveRun(ctx, model.NewRunResult("empty"))
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	records, err := db.GetRunRecords(ctx, id)
	if err != nil {
		t.Fatalf("GetRunRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}

	meta, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !meta.FinishedAt.IsZero() {
		t.Errorf("expected zero FinishedAt, got %v", meta.FinishedAt)
	}

	if _, err := db.SaveRun(ctx, nil); err == nil {
		t.Error("expected error saving nil result")
	}
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i := range 3 {
		id, err := db.SaveRun(ctx, sampleRun("gras-2024", base.Add(time.Duration(i)*24*time.Hour)))
		if err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		ids = append(ids, id)
	}
	if _, err := db.SaveRun(ctx, sampleRun("arwu-2024", base)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	t.Run("ListSources", func(t *testing.T) {
		t.Parallel()

		got, err := db.ListSources(ctx)
		if err != nil {
			t.Fatalf("ListSources failed: %v", err)
		}
		if diff := cmp.Diff([]string{"arwu-2024", "gras-2024"}, got); diff != "" {
			t.Errorf("sources mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("GetRunHistory is newest first", func(t *testing.T) {
		t.Parallel()

		history, err := db.GetRunHistory(ctx, "gras-2024")
		if err != nil {
			t.Fatalf("GetRunHistory failed: %v", err)
		}
		got := make([]int64, 0, len(history))
		for _, h := range history {
			got = append(got, h.ID)
		}
		want := []int64{ids[2], ids[1], ids[0]}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("history order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("GetLatestRunIDs", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			source string
			n      int
			want   []int64
		}{
			{name: "latest two", source: "gras-2024", n: 2, want: []int64{ids[2], ids[1]}},
			{name: "more than stored", source: "gras-2024", n: 10, want: []int64{ids[2], ids[1], ids[0]}},
			{name: "zero", source: "gras-2024", n: 0, want: nil},
			{name: "unknown source", source: "nope", n: 2, want: nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				got, err := db.GetLatestRunIDs(ctx, tt.source, tt.n)
				if err != nil {
					t.Fatalf("GetLatestRunIDs failed: %v", err)
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("ids mismatch (-want +got):\n%s", diff)
				}
			})
		}
	})
}

func TestMissingRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetRun(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
	if _, err := db.GetRunRecords(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunRecords: expected ErrRunNotFound, got %v", err)
	}
	if _, err := db.GetRunFailures(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunFailures: expected ErrRunNotFound, got %v", err)
	}
	if err := db.DeleteRun(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("DeleteRun: expected ErrRunNotFound, got %v", err)
	}
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.SaveRun(ctx, sampleRun("gras-2024", time.Now()))
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := db.DeleteRun(ctx, id); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	var n int
	if err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE run_id = ?`, id).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected records to be deleted with the run, %d left", n)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "stored layout", input: formatTimestamp(want), want: want},
		{name: "RFC3339", input: "2024-03-04T05:06:07Z", want: want},
		{name: "SQLite datetime", input: "2024-03-04 05:06:07", want: want},
		{name: "garbage", input: "yesterday", want: time.Time{}},
		{name: "empty", input: "", want: time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
