package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/rankcrawl/internal/paginate"
	"github.com/nao1215/rankcrawl/internal/sink"
)

// TestNewConfig documents the defaults; a failing case means a default
// changed.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("crawling is sequential by default", func(t *testing.T) {
		t.Parallel()
		if cfg.Workers != 1 {
			t.Errorf("expected Workers to be 1, got %d", cfg.Workers)
		}
	})

	t.Run("default timeouts", func(t *testing.T) {
		t.Parallel()
		if cfg.PageTimeout != 15*time.Second {
			t.Errorf("expected PageTimeout 15s, got %v", cfg.PageTimeout)
		}
		if cfg.SettleTimeout != 10*time.Second {
			t.Errorf("expected SettleTimeout 10s, got %v", cfg.SettleTimeout)
		}
	})

	t.Run("default page delay is 2 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.PageDelay != 2*time.Second {
			t.Errorf("expected PageDelay 2s, got %v", cfg.PageDelay)
		}
	})

	t.Run("headless with history by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.Headless {
			t.Error("expected Headless to be true")
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("defaults validate once a source is set", func(t *testing.T) {
		t.Parallel()
		c := NewConfig()
		c.Sources = []string{"gras-2024"}
		if err := c.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})
}

// TestConfigValidate checks one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		c := NewConfig()
		c.Sources = []string{"gras-2024"}
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "valid", modify: func(*Config) {}, wantErr: nil},
		{name: "ad-hoc url", modify: func(c *Config) { c.Sources = nil; c.URL = "https://example.com" }, wantErr: nil},
		{name: "no source", modify: func(c *Config) { c.Sources = nil }, wantErr: ErrNoSource},
		{name: "source and url", modify: func(c *Config) { c.URL = "https://example.com" }, wantErr: ErrConflictingTargets},
		{name: "output with two sources", modify: func(c *Config) { c.Sources = []string{"a", "b"}; c.Output = "out.csv" }, wantErr: ErrAmbiguousOutput},
		{name: "zero workers", modify: func(c *Config) { c.Workers = 0 }, wantErr: ErrInvalidWorkers},
		{name: "negative workers", modify: func(c *Config) { c.Workers = -2 }, wantErr: ErrInvalidWorkers},
		{name: "zero page timeout", modify: func(c *Config) { c.PageTimeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "negative settle timeout", modify: func(c *Config) { c.SettleTimeout = -time.Second }, wantErr: ErrInvalidTimeout},
		{name: "json and markdown", modify: func(c *Config) { c.JSONReport = true; c.MarkdownReport = true }, wantErr: ErrConflictingReportFormats},
		{name: "negative page delay", modify: func(c *Config) { c.PageDelay = -time.Millisecond }, wantErr: ErrInvalidPageDelay},
		{name: "zero page delay", modify: func(c *Config) { c.PageDelay = 0 }, wantErr: nil},
		{name: "negative max pages", modify: func(c *Config) { c.MaxPages = -1 }, wantErr: ErrInvalidMaxPages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuiltinSources(t *testing.T) {
	t.Parallel()

	for name, src := range Builtin() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if err := src.Validate(); err != nil {
				t.Errorf("built-in source is invalid: %v", err)
			}
			if src.Output == "" {
				t.Error("built-in source has no output file")
			}
		})
	}

	t.Run("gras is categorized with the research filter", func(t *testing.T) {
		t.Parallel()

		src := Builtin()["gras-2024"]
		if !src.Categorized() {
			t.Error("expected gras-2024 to be categorized")
		}
		if src.Filter != "High Quality Research" {
			t.Errorf("unexpected filter %q", src.Filter)
		}
	})

	t.Run("arwu needs two cells", func(t *testing.T) {
		t.Parallel()

		src := Builtin()["arwu-2024"]
		if src.Categorized() {
			t.Error("expected arwu-2024 to be flat")
		}
		if src.Selectors.Table.MinCells != 2 {
			t.Errorf("expected MinCells 2, got %d", src.Selectors.Table.MinCells)
		}
	})
}

func TestFileGetSource(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SourceConfig{
			Pagination: "next",
			PageDelay:  3 * time.Second,
			Selectors: Selectors{
				Table: paginate.Selectors{Row: "table tbody tr"},
			},
		},
		Sources: map[string]SourceConfig{
			"gras-2024": {
				Output: "out/gras.csv",
			},
			"qs-2025": {
				URL:        "https://example.com/qs/2025",
				Layout:     "flat",
				Pagination: "load-more",
				Selectors: Selectors{
					Table: paginate.Selectors{LoadMore: "button.more"},
				},
			},
		},
	}

	tests := []struct {
		name   string
		source string
		want   SourceConfig
		wantOK bool
	}{
		{
			name:   "file entry overrides built-in fields it sets",
			source: "gras-2024",
			want: SourceConfig{
				URL:        "https://www.shanghairanking.com/rankings/gras/2024",
				Layout:     "categorized",
				Filter:     "High Quality Research",
				Output:     "out/gras.csv",
				Pagination: "next",
				PageDelay:  3 * time.Second,
				Selectors: Selectors{
					Table: paginate.Selectors{Row: "table tbody tr"},
				},
			},
			wantOK: true,
		},
		{
			name:   "built-in selectors merge over defaults",
			source: "arwu-2024",
			want: SourceConfig{
				URL:        "https://www.shanghairanking.com/rankings/arwu/2024",
				Layout:     "flat",
				Output:     "academic_ranking_world_universities.csv",
				Pagination: "next",
				PageDelay:  3 * time.Second,
				Selectors: Selectors{
					Table: paginate.Selectors{
						Row:      "table tbody tr",
						Name:     "span[data-v-a91a96c2].univ-name",
						MinCells: 2,
					},
				},
			},
			wantOK: true,
		},
		{
			name:   "configured only",
			source: "qs-2025",
			want: SourceConfig{
				URL:        "https://example.com/qs/2025",
				Layout:     "flat",
				Pagination: "load-more",
				PageDelay:  3 * time.Second,
				Selectors: Selectors{
					Table: paginate.Selectors{Row: "table tbody tr", LoadMore: "button.more"},
				},
			},
			wantOK: true,
		},
		{
			name:   "unknown",
			source: "nope",
			want:   cf.Defaults,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := cf.GetSource(tt.source)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("source mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("nil file still serves built-ins", func(t *testing.T) {
		t.Parallel()

		var nilFile *File
		got, ok := nilFile.GetSource("grsssd-2024")
		if !ok || got.Filter != "TOP" {
			t.Errorf("unexpected result %+v, %v", got, ok)
		}
	})
}

func TestSourceNames(t *testing.T) {
	t.Parallel()

	cf := &File{Sources: map[string]SourceConfig{
		"zz-custom": {URL: "https://example.com"},
		"gras-2024": {Output: "x.csv"},
	}}
	want := []string{"arwu-2024", "gras-2024", "grsssd-2024", "zz-custom"}
	if diff := cmp.Diff(want, cf.SourceNames()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     SourceConfig
		wantErr error
	}{
		{name: "valid", src: SourceConfig{URL: "https://example.com/r", Layout: "flat"}},
		{name: "missing url", src: SourceConfig{Layout: "flat"}, wantErr: ErrInvalidSourceURL},
		{name: "relative url", src: SourceConfig{URL: "/rankings"}, wantErr: ErrInvalidSourceURL},
		{name: "ftp url", src: SourceConfig{URL: "ftp://example.com/r"}, wantErr: ErrInvalidSourceURL},
		{name: "negative max pages", src: SourceConfig{URL: "https://example.com", MaxPages: -1}, wantErr: ErrInvalidMaxPages},
		{name: "negative delay", src: SourceConfig{URL: "https://example.com", PageDelay: -time.Second}, wantErr: ErrInvalidPageDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.src.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("bad layout and pagination are rejected", func(t *testing.T) {
		t.Parallel()

		if err := (SourceConfig{URL: "https://example.com", Layout: "tree"}).Validate(); err == nil {
			t.Error("expected error for unknown layout")
		}
		if err := (SourceConfig{URL: "https://example.com", Pagination: "infinite"}).Validate(); err == nil {
			t.Error("expected error for unknown pagination")
		}
	})
}

func TestLayoutOrFlat(t *testing.T) {
	t.Parallel()

	l, err := SourceConfig{}.LayoutOrFlat()
	if err != nil || l != sink.LayoutFlat {
		t.Errorf("empty layout = %v, %v; want flat", l, err)
	}
	l, err = SourceConfig{Layout: "categorized"}.LayoutOrFlat()
	if err != nil || l != sink.LayoutCategorized {
		t.Errorf("categorized layout = %v, %v", l, err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.rankcrawl")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `defaults:
  pageDelay: 1500ms
  maxPages: 40
sources:
  qs-2025:
    url: https://example.com/qs/2025
    layout: flat
    filter: Overall
    pagination: load-more
    selectors:
      table:
        row: "table tbody tr"
        minCells: 3
        loadMore: "button.more"
      filter:
        dropdown: "div.select"
`)

		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.PageDelay != 1500*time.Millisecond {
			t.Errorf("expected pageDelay 1.5s, got %v", cfg.Defaults.PageDelay)
		}
		if cfg.Defaults.MaxPages != 40 {
			t.Errorf("expected maxPages 40, got %d", cfg.Defaults.MaxPages)
		}

		src, ok := cfg.Sources["qs-2025"]
		if !ok {
			t.Fatal("expected qs-2025 in sources")
		}
		if src.Filter != "Overall" || src.Pagination != "load-more" {
			t.Errorf("unexpected source %+v", src)
		}
		if src.Selectors.Table.MinCells != 3 || src.Selectors.Table.LoadMore != "button.more" {
			t.Errorf("unexpected table selectors %+v", src.Selectors.Table)
		}
		if src.Selectors.Filter.Dropdown != "div.select" {
			t.Errorf("unexpected filter selectors %+v", src.Selectors.Filter)
		}
	})

	t.Run("partial override of a built-in source is accepted", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "sources:\n  gras-2024:\n    output: gras.csv\n")
		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sources["gras-2024"].Output != "gras.csv" {
			t.Errorf("override not loaded: %+v", cfg.Sources)
		}
	})

	t.Run("rejects invalid source entries", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "sources:\n  bad:\n    url: /relative\n")
		_, err := LoadConfigFile(path)
		if !errors.Is(err, ErrInvalidSourceURL) {
			t.Errorf("expected ErrInvalidSourceURL, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), `"bad"`) {
			t.Errorf("error should name the source: %v", err)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `invalid: yaml: content: [}`)
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sources map", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "defaults:\n  maxPages: 5\n")
		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sources == nil {
			t.Error("expected Sources map to be initialized")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "defaults: {}")
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("explicit missing path is an error", func(t *testing.T) {
		t.Parallel()

		_, _, err := Load("/nonexistent/path/.rankcrawl")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("explicit path is loaded", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "sources:\n  custom:\n    url: https://example.com/r\n")
		cf, got, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != path {
			t.Errorf("expected path %q, got %q", path, got)
		}
		if _, ok := cf.GetSource("custom"); !ok {
			t.Error("expected custom source")
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if !strings.HasSuffix(XDGDataDir(), AppName) {
		t.Errorf("unexpected data dir %q", XDGDataDir())
	}
	if !strings.HasSuffix(XDGConfigDir(), AppName) {
		t.Errorf("unexpected config dir %q", XDGConfigDir())
	}
}
