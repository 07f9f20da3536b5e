package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/render"
	"github.com/nao1215/rankcrawl/internal/render/rendertest"
)

const landing = "https://www.shanghairanking.com/rankings/gras/2024"

const landingPage = `<html><body><div class="subject-container">
<div class="subject-item">
  <div class="subject-category"><span class="subject-title"> Natural Sciences </span></div>
  <div class="subject-list">
    <a class="subj-link" href="/rankings/gras/2024/RS0101">Mathematics</a>
    <a class="subj-link" href="RS0102"> Physics </a>
    <a class="subj-link">Chemistry</a>
  </div>
</div>
<div class="subject-item">
  <div class="subject-list"><a class="subj-link" href="/orphan">Orphan</a></div>
</div>
<div class="subject-item">
  <div class="subject-category"><span class="subject-title">Engineering</span></div>
  <div class="subject-list">
    <a class="subj-link" href="https://other.example.com/RS0201">Mechanical Engineering</a>
  </div>
</div>
</div></body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, site *rendertest.Site) render.Session {
	t.Helper()

	s, err := site.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestPlan tests reading the subject hierarchy.
func TestPlan(t *testing.T) {
	t.Parallel()

	t.Run("builds tasks in page order", func(t *testing.T) {
		t.Parallel()

		site := rendertest.NewSite().Doc("landing", landingPage).Route(landing, "landing")
		s := newSession(t, site)
		filter := model.NewFilterTarget("High Quality Research")

		tasks, err := New(WithLogger(quietLogger())).Plan(context.Background(), s, landing, filter)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.NavigationTask{
			{Category: "Natural Sciences", Subcategory: "Mathematics", URL: "https://www.shanghairanking.com/rankings/gras/2024/RS0101", Filter: filter},
			{Category: "Natural Sciences", Subcategory: "Physics", URL: "https://www.shanghairanking.com/rankings/gras/RS0102", Filter: filter},
			{Category: "Engineering", Subcategory: "Mechanical Engineering", URL: "https://other.example.com/RS0201", Filter: filter},
		}
		if diff := cmp.Diff(want, tasks); diff != "" {
			t.Errorf("tasks mismatch (-want +got):\n%s", diff)
		}
		for _, task := range tasks {
			if err := task.Validate(); err != nil {
				t.Errorf("task %s: %v", task, err)
			}
		}
	})

	t.Run("landing page without subjects", func(t *testing.T) {
		t.Parallel()

		site := rendertest.NewSite().Doc("empty", "<html><body></body></html>").Route(landing, "empty")
		s := newSession(t, site)

		p := New(WithLogger(quietLogger()), WithSettleTimeout(20*time.Millisecond))
		if _, err := p.Plan(context.Background(), s, landing, nil); !errors.Is(err, ErrEmptyPlan) {
			t.Errorf("expected ErrEmptyPlan, got %v", err)
		}
	})

	t.Run("landing page that fails to open", func(t *testing.T) {
		t.Parallel()

		site := rendertest.NewSite().FailOpen(landing, render.ErrSessionLost)
		s := newSession(t, site)

		_, err := New(WithLogger(quietLogger())).Plan(context.Background(), s, landing, nil)
		if !errors.Is(err, render.ErrSessionLost) {
			t.Errorf("expected ErrSessionLost, got %v", err)
		}
	})

	t.Run("custom selectors", func(t *testing.T) {
		t.Parallel()

		page := `<html><body><section class="group"><h2>Arts</h2><a class="s" href="/arts/music">Music</a></section></body></html>`
		site := rendertest.NewSite().Doc("p", page).Route(landing, "p")
		s := newSession(t, site)

		p := New(WithLogger(quietLogger()), WithSelectors(Selectors{Item: "section.group", Category: "h2", Link: "a.s"}))
		tasks, err := p.Plan(context.Background(), s, landing, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tasks) != 1 || tasks[0].Subcategory != "Music" || tasks[0].URL != "https://www.shanghairanking.com/arts/music" {
			t.Errorf("unexpected tasks %+v", tasks)
		}
	})
}

// TestFlat tests the synthetic task of flat sources.
func TestFlat(t *testing.T) {
	t.Parallel()

	filter := model.NewFilterTarget("TOP")
	tasks := Flat("https://www.shanghairanking.com/rankings/grsssd/2024", filter)
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].Category != "" || tasks[0].Subcategory != "" || tasks[0].Filter != filter {
		t.Errorf("unexpected task %+v", tasks[0])
	}
}
