// Package report renders crawl runs and run comparisons.
//
// Three formats are provided:
//   - SimpleWriter: terminal tables drawn with go-pretty
//   - MarkdownWriter: GitHub flavored Markdown built with nao1215/markdown
//   - JSONWriter: structured output for other tools
//
// All writers implement Writer and can be combined with MultiWriter.
package report
