// Package paginate extracts ranking rows from rendered result tables and
// walks through their pages.
//
// Extract maps the current page snapshot to records. A Walker repeats
// that for every page reachable through the "next" control, or, in
// load-more mode, expands the list first and extracts it once. Rows that
// lack a name or a rank are skipped and counted, never fatal.
package paginate
