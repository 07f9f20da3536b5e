package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/nao1215/rankcrawl/internal/filter"
	"github.com/nao1215/rankcrawl/internal/paginate"
	"github.com/nao1215/rankcrawl/internal/planner"
	"github.com/nao1215/rankcrawl/internal/sink"
)

// Selectors groups the CSS selectors of one source. Empty fields fall back
// to each package's defaults.
type Selectors struct {
	Filter  filter.Selectors   `yaml:"filter,omitempty"`
	Table   paginate.Selectors `yaml:"table,omitempty"`
	Planner planner.Selectors  `yaml:"planner,omitempty"`
}

// SourceConfig describes one ranking source.
type SourceConfig struct {
	// URL is the landing page. For categorized sources it lists the
	// subjects; for flat sources it is the ranking table itself.
	URL string `yaml:"url,omitempty"`

	// Layout is "categorized" or "flat".
	Layout string `yaml:"layout,omitempty"`

	// Filter is the dropdown option to select on every ranking page.
	Filter string `yaml:"filter,omitempty"`

	// Output is the CSV file written for this source.
	Output string `yaml:"output,omitempty"`

	// Pagination is "next" or "load-more".
	Pagination string `yaml:"pagination,omitempty"`

	// MaxPages caps pages per task. Zero means no cap.
	MaxPages int `yaml:"maxPages,omitempty"`

	// PageDelay is the minimum delay between page transitions.
	PageDelay time.Duration `yaml:"pageDelay,omitempty"`

	// Selectors override the default CSS selectors.
	Selectors Selectors `yaml:"selectors,omitempty"`
}

// File is the structure of the .rankcrawl configuration file.
type File struct {
	// Defaults apply to every source unless overridden.
	Defaults SourceConfig `yaml:"defaults,omitempty"`

	// Sources maps source names to their configuration. A name that is
	// also built in overrides the built-in fields it sets.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`
}

// Builtin returns the sources available without a configuration file.
func Builtin() map[string]SourceConfig {
	return map[string]SourceConfig{
		"gras-2024": {
			URL:    "https://www.shanghairanking.com/rankings/gras/2024",
			Layout: "categorized",
			Filter: "High Quality Research",
			Output: "categorized_rankings.csv",
		},
		"arwu-2024": {
			URL:    "https://www.shanghairanking.com/rankings/arwu/2024",
			Layout: "flat",
			Output: "academic_ranking_world_universities.csv",
			Selectors: Selectors{
				Table: paginate.Selectors{
					Name:     "span[data-v-a91a96c2].univ-name",
					MinCells: 2,
				},
			},
		},
		"grsssd-2024": {
			URL:    "https://www.shanghairanking.com/rankings/grsssd/2024",
			Layout: "flat",
			Filter: "TOP",
			Output: "sport_science_ranking.csv",
		},
	}
}

// SourceNames returns the sorted names of built-in and configured sources.
func (cf *File) SourceNames() []string {
	all := slices.Collect(maps.Keys(Builtin()))
	if cf != nil {
		for name := range cf.Sources {
			if !slices.Contains(all, name) {
				all = append(all, name)
			}
		}
	}
	slices.Sort(all)
	return all
}

// GetSource returns the merged configuration of name: file defaults, then
// the built-in definition, then the file's own entry. The boolean is
// false when name is neither built in nor configured.
func (cf *File) GetSource(name string) (SourceConfig, bool) {
	var result SourceConfig
	if cf != nil {
		result = cf.Defaults
	}

	builtin, inBuiltin := Builtin()[name]
	if inBuiltin {
		result = merge(result, builtin)
	}

	inFile := false
	if cf != nil {
		var src SourceConfig
		src, inFile = cf.Sources[name]
		if inFile {
			result = merge(result, src)
		}
	}

	return result, inBuiltin || inFile
}

// merge returns base with every non-zero field of over applied.
func merge(base, over SourceConfig) SourceConfig {
	if over.URL != "" {
		base.URL = over.URL
	}
	if over.Layout != "" {
		base.Layout = over.Layout
	}
	if over.Filter != "" {
		base.Filter = over.Filter
	}
	if over.Output != "" {
		base.Output = over.Output
	}
	if over.Pagination != "" {
		base.Pagination = over.Pagination
	}
	if over.MaxPages != 0 {
		base.MaxPages = over.MaxPages
	}
	if over.PageDelay != 0 {
		base.PageDelay = over.PageDelay
	}
	base.Selectors = mergeSelectors(base.Selectors, over.Selectors)
	return base
}

func mergeSelectors(base, over Selectors) Selectors {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&base.Filter.Dropdown, over.Filter.Dropdown)
	set(&base.Filter.Head, over.Filter.Head)
	set(&base.Filter.Options, over.Filter.Options)
	set(&base.Filter.Inert, over.Filter.Inert)

	set(&base.Table.Row, over.Table.Row)
	set(&base.Table.Name, over.Table.Name)
	set(&base.Table.Cell, over.Table.Cell)
	set(&base.Table.Next, over.Table.Next)
	set(&base.Table.DisabledClass, over.Table.DisabledClass)
	set(&base.Table.LoadMore, over.Table.LoadMore)
	if over.Table.MinCells != 0 {
		base.Table.MinCells = over.Table.MinCells
	}

	set(&base.Planner.Item, over.Planner.Item)
	set(&base.Planner.Category, over.Planner.Category)
	set(&base.Planner.Link, over.Planner.Link)
	return base
}

// Validate checks a merged source configuration.
func (s SourceConfig) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("%w: url is empty", ErrInvalidSourceURL)
	}
	return s.validateFields()
}

// validateFields checks the fields that are set, so that partial entries
// overriding a built-in source can be checked on load.
func (s SourceConfig) validateFields() error {
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %q", ErrInvalidSourceURL, s.URL)
		}
	}
	if s.Layout != "" {
		if _, err := sink.ParseLayout(s.Layout); err != nil {
			return err
		}
	}
	if _, err := paginate.ParseMode(s.Pagination); err != nil {
		return err
	}
	if s.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if s.PageDelay < 0 {
		return ErrInvalidPageDelay
	}
	return nil
}

// LayoutOrFlat parses Layout, treating an empty value as flat.
func (s SourceConfig) LayoutOrFlat() (sink.Layout, error) {
	if s.Layout == "" {
		return sink.LayoutFlat, nil
	}
	return sink.ParseLayout(s.Layout)
}

// Categorized reports whether the source is crawled through its subject
// hierarchy.
func (s SourceConfig) Categorized() bool {
	l, err := s.LayoutOrFlat()
	return err == nil && l == sink.LayoutCategorized
}
