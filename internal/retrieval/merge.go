package retrieval

import (
	"cmp"
	"slices"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
)

// join attaches each match to the record with the same id from details, which
// must be the batch fetched for the match's own source.
func join(matches []SimilarityMatch, details []database.DetailRecord, fallback FallbackPicker) []RankedResult {
	byID := make(map[string]database.DetailRecord, len(details))
	for _, d := range details {
		if _, ok := byID[d.ImageID]; !ok {
			byID[d.ImageID] = d
		}
	}

	results := make([]RankedResult, 0, len(matches))
	for _, m := range matches {
		rec := byID[m.ImageID]
		rec.ImageID = m.ImageID
		if !rec.HasURL() && fallback != nil {
			rec.URL = fallback.Pick()
		}
		results = append(results, RankedResult{
			DetailRecord: rec.WithDefaults(),
			Similarity:   m.Similarity,
			Source:       m.Source,
		})
	}
	return results
}

// merge concatenates the per-source lists in order, sorts by similarity
// descending and keeps the top results. Ties keep their input order.
func merge(lists ...[]RankedResult) []RankedResult {
	var all []RankedResult
	for _, l := range lists {
		all = append(all, l...)
	}
	slices.SortStableFunc(all, func(a, b RankedResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if len(all) > constants.MaxRankedResults {
		all = all[:constants.MaxRankedResults]
	}
	if all == nil {
		all = []RankedResult{}
	}
	return all
}
