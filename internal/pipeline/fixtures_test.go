package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/rankcrawl/internal/filter"
	"github.com/nao1215/rankcrawl/internal/paginate"
	"github.com/nao1215/rankcrawl/internal/sink"
)

const (
	landingURL = "https://example.com/"
	physicsURL = "https://example.com/r/physics"
)

// dropdown renders a filter control offering labels, with head showing
// the current selection.
func dropdown(head string, labels ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="rank-select"><div class="head-bg">%s</div><ul class="options">`, head)
	for i, l := range labels {
		fmt.Fprintf(&b, `<li data-i="%d">%s</li>`, i, l)
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}

// rankingPage renders a result page with the given filter markup, rows
// as alternating name, rank pairs and an optional enabled next control.
func rankingPage(filterHTML string, next bool, rows ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(filterHTML)
	b.WriteString(`<table><tbody>`)
	for i := 0; i+1 < len(rows); i += 2 {
		fmt.Fprintf(&b, `<tr data-v-ae1ab4a8=""><td><a href="#"><span class="univ-name">%s</span></a></td><td>%s</td></tr>`, rows[i], rows[i+1])
	}
	b.WriteString(`</tbody></table>`)
	if next {
		b.WriteString(`<ul class="ant-pagination"><li class="ant-pagination-next"><a>&gt;</a></li></ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

const scenarioLanding = `<html><body><div class="subject-container">
<div class="subject-item">
  <div class="subject-category"><span class="subject-title">Science</span></div>
  <div class="subject-list"><a class="subj-link" href="/r/physics">Physics</a></div>
</div>
</div></body></html>`

// testPipelineFactory builds the default pipeline with short waits.
func testPipelineFactory(out sink.Sink) func() *Pipeline {
	return func() *Pipeline {
		return DefaultPipeline(
			[]Option{WithLogger(quietLogger())},
			WithPipelineResolver(filter.New(
				filter.WithSettleTimeout(50*time.Millisecond),
				filter.WithLogger(quietLogger()),
			)),
			WithPipelineWalkerOptions(
				paginate.WithPageTimeout(30*time.Millisecond),
				paginate.WithLogger(quietLogger()),
			),
			WithPipelineSink(out),
		)
	}
}
