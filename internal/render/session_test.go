package render_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/rankcrawl/internal/render"
	"github.com/nao1215/rankcrawl/internal/render/rendertest"
)

const listPage = `<html><body>
<ul class="items"><li class="a">one</li><li class="b">two</li></ul>
</body></html>`

func openList(t *testing.T) render.Session {
	t.Helper()

	site := rendertest.NewSite().
		Doc("list", listPage).
		Route("https://example.com/", "list")
	s, err := site.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Open(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// TestFindFirst tests FindFirst against a scripted session.
func TestFindFirst(t *testing.T) {
	t.Parallel()

	t.Run("returns first match", func(t *testing.T) {
		t.Parallel()

		s := openList(t)
		el, err := render.FindFirst(context.Background(), s, "li")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text, err := el.Text(context.Background())
		if err != nil {
			t.Fatalf("Text: %v", err)
		}
		if text != "one" {
			t.Errorf("expected %q, got %q", "one", text)
		}
	})

	t.Run("no match is ErrElementNotFound", func(t *testing.T) {
		t.Parallel()

		s := openList(t)
		_, err := render.FindFirst(context.Background(), s, "table")
		if !errors.Is(err, render.ErrElementNotFound) {
			t.Errorf("expected ErrElementNotFound, got %v", err)
		}
	})
}

// TestFindOne tests FindOne scoped to an element.
func TestFindOne(t *testing.T) {
	t.Parallel()

	s := openList(t)
	ul, err := render.FindFirst(context.Background(), s, "ul.items")
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}

	li, err := render.FindOne(context.Background(), ul, "li.b")
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	class, ok, err := li.Attribute(context.Background(), "class")
	if err != nil || !ok || class != "b" {
		t.Errorf("expected class b, got %q ok=%v err=%v", class, ok, err)
	}

	if _, err := render.FindOne(context.Background(), ul, "span"); !errors.Is(err, render.ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
}

// TestFactoryFunc tests the function adapter.
func TestFactoryFunc(t *testing.T) {
	t.Parallel()

	want := errors.New("no browser")
	f := render.FactoryFunc(func(context.Context) (render.Session, error) {
		return nil, want
	})
	if _, err := f.NewSession(context.Background()); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
