// Package render defines the browser capability the crawl core consumes.
//
// A Session is one logical browser tab: it opens a URL, lets callers query
// elements by CSS selector, read text and attributes, click (directly or
// through script) and wait for a condition with a bounded timeout.
// Sessions are stateful and must not be shared between goroutines; a
// Factory provisions one Session per worker.
//
// Implementations:
//   - rodsession: a real Chromium driven through go-rod
//   - rendertest: a scripted in-memory site for tests
package render
