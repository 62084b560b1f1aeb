package processor

import (
	"fmt"
	"sort"
)

// stableRank assigns distinct ranks 1..n, breaking ties by original position.
// A block of identical values therefore ranks in encounter order instead of
// collapsing, which keeps quartile cuts well-defined when, say, most customers
// share frequency 1.
func stableRank(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	ranks := make([]float64, len(values))
	for pos, i := range idx {
		ranks[i] = float64(pos + 1)
	}
	return ranks
}

// percentile computes the p-th percentile (0..1) of values with linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := p * float64(len(sorted)-1)
	lower := int(pos)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

// quartileCuts returns the interpolated 25/50/75th percentile boundaries for
// values. The five bin edges (min, q1, q2, q3, max) must be strictly
// increasing; otherwise at least one quartile bin would be empty or two bins
// would merge, and the cut is rejected.
func quartileCuts(values []float64) ([3]float64, error) {
	var cuts [3]float64

	if len(values) < 4 {
		return cuts, fmt.Errorf("population of %d is too small for quartiles", len(values))
	}

	cuts[0] = percentile(values, 0.25)
	cuts[1] = percentile(values, 0.50)
	cuts[2] = percentile(values, 0.75)

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	edges := [5]float64{min, cuts[0], cuts[1], cuts[2], max}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return cuts, fmt.Errorf("duplicate quartile edge %v (too few distinct values)", edges[i])
		}
	}

	return cuts, nil
}

// scoreByCuts maps a value to its quartile score 1..4 against the given
// boundaries (value == boundary falls into the lower bin). With invert set the
// mapping flips so the lowest quartile scores 4.
func scoreByCuts(v float64, cuts [3]float64, invert bool) int {
	score := 4
	switch {
	case v <= cuts[0]:
		score = 1
	case v <= cuts[1]:
		score = 2
	case v <= cuts[2]:
		score = 3
	}
	if invert {
		return 5 - score
	}
	return score
}
