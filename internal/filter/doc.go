// Package filter selects an option in one of several dropdown controls on
// a rendered page.
//
// Ranking pages often carry more than one visually identical dropdown (a
// category selector next to a metric selector, for instance) with no
// stable identifier. The Resolver probes every candidate in document
// order, opens it, reads its options and selects the first option whose
// label matches. Candidates that do not offer the label are closed again
// so the page is left without unintended selections.
package filter
