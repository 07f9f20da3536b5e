// Package main provides the entry point for the rankcrawl CLI.
//
// rankcrawl extracts university rankings from JavaScript-rendered ranking
// sites into CSV files. It drives a real browser, selects the requested
// ranking indicator, follows pagination and walks subject hierarchies.
//
// Usage:
//
//	rankcrawl crawl gras-2024
//	rankcrawl crawl --url https://example.com/rankings/2024 --filter TOP
//
// See --help for all available options.
package main

func main() {
	Execute()
}
