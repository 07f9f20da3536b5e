package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/sink"
)

const duplicatedCSV = `category,subcategory,university,ranking
Natural Sciences,Physics,MIT,1
Natural Sciences,Physics,MIT,1
Natural Sciences,Physics,Caltech,2
Natural Sciences,Physics,MIT,1
`

func TestRunDedupCmd(t *testing.T) {
	t.Parallel()

	want := []model.RankingRecord{
		{Category: "Natural Sciences", Subcategory: "Physics", EntityName: "MIT", RankText: "1"},
		{Category: "Natural Sciences", Subcategory: "Physics", EntityName: "Caltech", RankText: "2"},
	}

	t.Run("in place", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rankings.csv")
		if err := os.WriteFile(path, []byte(duplicatedCSV), 0600); err != nil {
			t.Fatal(err)
		}

		var out bytes.Buffer
		cmd := NewDedupCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{path})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "removed 2 duplicates") {
			t.Errorf("unexpected output %q", out.String())
		}

		got, layout, err := sink.ReadCSVFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if layout != sink.LayoutCategorized {
			t.Errorf("expected categorized layout, got %v", layout)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("separate output", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		in := filepath.Join(dir, "rankings.csv")
		out := filepath.Join(dir, "unique.csv")
		if err := os.WriteFile(in, []byte(duplicatedCSV), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewDedupCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{in, "-o", out})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		original, err := os.ReadFile(in)
		if err != nil {
			t.Fatal(err)
		}
		if string(original) != duplicatedCSV {
			t.Error("expected the input file to be left alone")
		}
		got, _, err := sink.ReadCSVFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		cmd := NewDedupCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.csv")})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error for a missing file")
		}
	})

	t.Run("requires one argument", func(t *testing.T) {
		t.Parallel()
		cmd := NewDedupCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error without arguments")
		}
	})
}
