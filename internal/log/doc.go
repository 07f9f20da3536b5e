// Package log builds the slog loggers used by rankcrawl.
//
// Every logger returned here is wrapped in a RedactingHandler. Browser
// control URLs, proxy credentials and cookies travel through the same code
// paths as ordinary page URLs, so the handler masks them before any record
// reaches the output:
//   - attributes whose key names a secret (cookie, authorization, token...)
//   - values that look like bearer, basic or JWT credentials
//   - user info, token-like query parameters and DevTools session ids
//     inside URL values, leaving the rest of the URL readable
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
