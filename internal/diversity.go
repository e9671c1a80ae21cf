package internal

import "strings"

// _diversityLambda is the penalty weight per diversity level. LOW degenerates
// to pure relevance order.
var _diversityLambda = map[DiversityLevel]float64{
	DiversityLow:    0.00,
	DiversityMedium: 0.05,
	DiversityHigh:   0.12,
}

// diversify selects up to maxResults papers from the relevance-ranked input,
// greedily maximizing score − λ·penalty, where the penalty counts
// already-selected papers sharing the candidate's field, venue, or first
// author. Ties go to the candidate earlier in relevance order, which also
// makes the result deterministic.
func diversify(ranked []DiscoveredPaper, level DiversityLevel, maxResults int) []DiscoveredPaper {
	maxResults = min(maxResults, _maxResultsCap)
	lambda := _diversityLambda[level]
	if lambda == 0 || len(ranked) <= 1 {
		return ranked[:min(maxResults, len(ranked))]
	}

	fields := map[string]int{}
	venues := map[string]int{}
	authors := map[string]int{}

	selected := make([]DiscoveredPaper, 0, min(maxResults, len(ranked)))
	remaining := make([]DiscoveredPaper, len(ranked))
	copy(remaining, ranked)

	for len(selected) < maxResults && len(remaining) > 0 {
		bestIdx := 0
		bestValue := 0.0
		for i, c := range remaining {
			value := c.RelevanceScore - lambda*float64(penalty(c, fields, venues, authors))
			// Strict > keeps the earlier (more relevant) candidate on ties.
			if i == 0 || value > bestValue {
				bestIdx, bestValue = i, value
			}
		}

		pick := remaining[bestIdx]
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		if f := axisKey(pick.Field); f != "" {
			fields[f]++
		}
		if v := axisKey(pick.Journal); v != "" {
			venues[v]++
		}
		if a := axisKey(firstAuthor(pick)); a != "" {
			authors[a]++
		}
	}

	return selected
}

// penalty counts already-selected papers sharing any axis value with the
// candidate.
func penalty(c DiscoveredPaper, fields, venues, authors map[string]int) int {
	n := 0
	if f := axisKey(c.Field); f != "" {
		n += fields[f]
	}
	if v := axisKey(c.Journal); v != "" {
		n += venues[v]
	}
	if a := axisKey(firstAuthor(c)); a != "" {
		n += authors[a]
	}
	return n
}

func firstAuthor(c DiscoveredPaper) string {
	if len(c.Authors) == 0 {
		return ""
	}
	return c.Authors[0]
}

func axisKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
