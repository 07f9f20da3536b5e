package dataset

import "github.com/nao1215/rankcrawl/internal/model"

// EntryKey identifies a ranked entity within its subject.
type EntryKey struct {
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	EntityName  string `json:"university"`
}

func entryKey(r model.RankingRecord) EntryKey {
	return EntryKey{Category: r.Category, Subcategory: r.Subcategory, EntityName: r.EntityName}
}

// RankChange is an entity whose rank text differs between two runs.
type RankChange struct {
	EntryKey
	OldRank string `json:"old_rank"`
	NewRank string `json:"new_rank"`
}

// Diff is the difference between two runs of the same source.
type Diff struct {
	Added   []model.RankingRecord `json:"added"`
	Removed []model.RankingRecord `json:"removed"`
	Changed []RankChange          `json:"changed"`
}

// Empty reports whether the runs are equivalent.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare returns what changed from previous to current. Entities are
// keyed by category, subcategory and name; if a key occurs several times
// in a run, its first occurrence counts. Added and Changed follow the
// order of current, Removed the order of previous.
func Compare(previous, current []model.RankingRecord) Diff {
	prev := index(previous)
	cur := index(current)

	d := Diff{
		Added:   make([]model.RankingRecord, 0),
		Removed: make([]model.RankingRecord, 0),
		Changed: make([]RankChange, 0),
	}
	for _, rec := range firsts(current) {
		old, ok := prev[entryKey(rec)]
		switch {
		case !ok:
			d.Added = append(d.Added, rec)
		case old.RankText != rec.RankText:
			d.Changed = append(d.Changed, RankChange{
				EntryKey: entryKey(rec),
				OldRank:  old.RankText,
				NewRank:  rec.RankText,
			})
		}
	}
	for _, rec := range firsts(previous) {
		if _, ok := cur[entryKey(rec)]; !ok {
			d.Removed = append(d.Removed, rec)
		}
	}
	return d
}

func index(records []model.RankingRecord) map[EntryKey]model.RankingRecord {
	m := make(map[EntryKey]model.RankingRecord, len(records))
	for _, r := range records {
		if _, ok := m[entryKey(r)]; !ok {
			m[entryKey(r)] = r
		}
	}
	return m
}

// firsts returns the first record of every key, in order.
func firsts(records []model.RankingRecord) []model.RankingRecord {
	seen := make(map[EntryKey]struct{}, len(records))
	out := make([]model.RankingRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[entryKey(r)]; ok {
			continue
		}
		seen[entryKey(r)] = struct{}{}
		out = append(out, r)
	}
	return out
}
