package model

import "strings"

// RankingRecord is a single extracted ranking row.
//
// Category and Subcategory are empty for flat (uncategorized) sources.
// RankText is kept verbatim because ranks may be ranges ("101-150"),
// ties ("=12") or other non-numeric markers.
type RankingRecord struct {
	// Category is the top-level subject group, e.g. "Natural Sciences".
	Category string `json:"category,omitempty"`

	// Subcategory is the subject inside the category, e.g. "Physics".
	Subcategory string `json:"subcategory,omitempty"`

	// EntityName is the ranked university name.
	EntityName string `json:"university"`

	// RankText is the raw rank cell text.
	RankText string `json:"ranking"`
}

// RecordKey is the identity of a record for de-duplication: the full tuple.
type RecordKey struct {
	Category    string
	Subcategory string
	EntityName  string
	RankText    string
}

// Key returns the identity tuple of the record.
func (r RankingRecord) Key() RecordKey {
	return RecordKey{
		Category:    r.Category,
		Subcategory: r.Subcategory,
		EntityName:  r.EntityName,
		RankText:    r.RankText,
	}
}

// IsCategorized reports whether the record carries hierarchy tags.
func (r RankingRecord) IsCategorized() bool {
	return r.Category != "" || r.Subcategory != ""
}

// TaskTag is the hierarchy label attached to every record of a task.
type TaskTag struct {
	Category    string
	Subcategory string
}

// String returns "category / subcategory", or "(flat)" for an empty tag.
func (t TaskTag) String() string {
	if t.Category == "" && t.Subcategory == "" {
		return "(flat)"
	}
	return t.Category + " / " + t.Subcategory
}

// Skip reasons reported by PageRowCandidate.ToRecord.
const (
	SkipMissingName = "missing name"
	SkipMissingRank = "missing rank"
	SkipTooFewCells = "too few cells"
)

// ExtractionSkip records a row that was omitted from the output.
// It is informational only and never surfaces as an error.
type ExtractionSkip struct {
	// Page is the one-based result page the row was on. It is zero when
	// the row was not extracted by a multi-page walk.
	Page int `json:"page,omitempty"`

	// Row is the zero-based row index on its page.
	Row int `json:"row"`

	// Reason is one of the Skip* constants.
	Reason string `json:"reason"`
}

// PageRowCandidate holds the raw cell texts of one table row before
// validation. It is discarded once mapped to a record or dropped.
type PageRowCandidate struct {
	// Index is the zero-based row index on its page.
	Index int

	// Name is the text of the name element, if one was found.
	Name string

	// Rank is the text of the last cell, if the row had cells.
	Rank string

	// Cells is the number of table cells in the row.
	Cells int
}

// ToRecord validates the candidate and maps it to a record tagged with tag.
// minCells is the minimum number of cells a valid row must have; values
// below 1 are treated as 1. The boolean is false when the row was skipped,
// in which case the returned ExtractionSkip explains why.
func (c PageRowCandidate) ToRecord(tag TaskTag, minCells int) (RankingRecord, ExtractionSkip, bool) {
	if minCells < 1 {
		minCells = 1
	}

	name := strings.TrimSpace(c.Name)
	if name == "" {
		return RankingRecord{}, ExtractionSkip{Row: c.Index, Reason: SkipMissingName}, false
	}
	if c.Cells < minCells {
		return RankingRecord{}, ExtractionSkip{Row: c.Index, Reason: SkipTooFewCells}, false
	}
	rank := strings.TrimSpace(c.Rank)
	if rank == "" {
		return RankingRecord{}, ExtractionSkip{Row: c.Index, Reason: SkipMissingRank}, false
	}

	return RankingRecord{
		Category:    tag.Category,
		Subcategory: tag.Subcategory,
		EntityName:  name,
		RankText:    rank,
	}, ExtractionSkip{}, true
}
