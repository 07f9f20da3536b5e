package paginate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/rankcrawl/internal/render/rendertest"
)

const rankingURL = "https://www.shanghairanking.com/rankings/arwu/2024"

type row struct {
	name   string
	rank   string
	anchor bool
}

// ranked returns a well-formed row.
func ranked(name, rank string) row {
	return row{name: name, rank: rank, anchor: true}
}

// next control states for tablePage.
const (
	noNext       = ""
	nextEnabled  = "enabled"
	nextDisabled = "disabled"
)

func tablePage(next string, rows ...row) string {
	var b strings.Builder
	b.WriteString(`<html><body><table><thead><tr><th>Rank</th><th>Institution</th><th>Score</th></tr></thead><tbody>`)
	for i, r := range rows {
		b.WriteString(`<tr data-v-ae1ab4a8="">`)
		fmt.Fprintf(&b, `<td>%d</td>`, i+1)
		switch {
		case r.name == "":
			b.WriteString(`<td></td>`)
		case r.anchor:
			fmt.Fprintf(&b, `<td><a href="/institution/%d"><span data-v-a91a96c2="" class="univ-name">%s</span></a></td>`, i, r.name)
		default:
			fmt.Fprintf(&b, `<td><div><span data-v-a91a96c2="" class="univ-name">%s</span></div></td>`, r.name)
		}
		fmt.Fprintf(&b, `<td>%s</td>`, r.rank)
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table>`)
	switch next {
	case nextEnabled:
		b.WriteString(`<ul class="ant-pagination"><li class="ant-pagination-item">1</li><li title="Next Page" class="ant-pagination-next"><a>&gt;</a></li></ul>`)
	case nextDisabled:
		b.WriteString(`<ul class="ant-pagination"><li class="ant-pagination-item">1</li><li title="Next Page" class="ant-pagination-next ant-pagination-disabled"><a>&gt;</a></li></ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openAt(t *testing.T, site *rendertest.Site, url string) *rendertest.Session {
	t.Helper()

	s, err := site.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Open(context.Background(), url); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s.(*rendertest.Session)
}
