package ranking

import (
	"sort"

	"github.com/seren-labs/serendex/internal/domain/search/candidate"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// sameTypePenalty is charged once per already-selected item sharing the
// candidate's entity type.
const sameTypePenalty = 0.1

// Rerank greedily reorders scored candidates to reduce redundancy,
// an O(n^2) maximal-marginal-relevance approximation over the already
// bounded candidate window. The output is always a permutation of the
// input; nothing is added or dropped. With diversityWeight 0 (or fewer
// than two candidates) it reduces to a plain descending final-score sort.
// Exactly tied adjusted scores fall back to stable input order, the only
// nondeterminism at diversityWeight > 0.
func Rerank(cands []candidate.Candidate, diversityWeight float64) []candidate.Candidate {
	sorted := make([]candidate.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FinalScore > sorted[j].FinalScore
	})

	if diversityWeight == 0 || len(sorted) < 2 {
		return sorted
	}

	selected := make([]candidate.Candidate, 0, len(sorted))
	selected = append(selected, sorted[0]) // seed with the top item
	remaining := sorted[1:]

	for len(remaining) > 0 {
		bestIdx := 0
		bestAdjusted := adjustedScore(&remaining[0], selected, diversityWeight)
		for i := 1; i < len(remaining); i++ {
			adjusted := adjustedScore(&remaining[i], selected, diversityWeight)
			if adjusted > bestAdjusted {
				bestAdjusted = adjusted
				bestIdx = i
			}
		}

		pick := remaining[bestIdx]
		pick.DiversityPenalty = pick.FinalScore - bestAdjusted
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// adjustedScore subtracts the weighted redundancy penalty: summed cosine
// similarity to every selected item with a known vector, plus a flat
// charge per selected item of the same type.
func adjustedScore(c *candidate.Candidate, selected []candidate.Candidate, diversityWeight float64) float64 {
	var simPenalty, typePenalty float64
	for i := range selected {
		s := &selected[i]
		if len(c.Vector) > 0 && len(s.Vector) > 0 {
			simPenalty += domvec.CosineWithMagnitudes(c.Vector, c.Magnitude, s.Vector, s.Magnitude)
		}
		if s.EntityType == c.EntityType {
			typePenalty += sameTypePenalty
		}
	}
	return c.FinalScore - diversityWeight*(simPenalty+typePenalty)
}
