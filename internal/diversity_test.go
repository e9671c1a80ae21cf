package internal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedCandidates() []DiscoveredPaper {
	papers := []DiscoveredPaper{}
	// Five strong papers from one venue and first author...
	for i := range 5 {
		papers = append(papers, DiscoveredPaper{
			DOI:            fmt.Sprintf("10.1/neurips.%d", i),
			Title:          fmt.Sprintf("NeurIPS Paper %d", i),
			Authors:        []string{"A. Lee"},
			Journal:        "NeurIPS",
			Field:          "machine learning",
			RelevanceScore: 0.95 - float64(i)*0.05,
		})
	}
	// ...and three weaker ones from elsewhere.
	for i := range 3 {
		papers = append(papers, DiscoveredPaper{
			DOI:            fmt.Sprintf("10.1/icml.%d", i),
			Title:          fmt.Sprintf("ICML Paper %d", i),
			Authors:        []string{"B. Kim"},
			Journal:        "ICML",
			Field:          "optimization",
			RelevanceScore: 0.7 - float64(i)*0.05,
		})
	}
	sortByRelevance(papers)
	return papers
}

func TestDiversityLowIsPureRelevance(t *testing.T) {
	t.Parallel()

	ranked := rankedCandidates()
	selected := diversify(ranked, DiversityLow, 5)

	require.Len(t, selected, 5)
	assert.Equal(t, ranked[:5], selected)
	for _, p := range selected {
		assert.Equal(t, "NeurIPS", p.Journal)
	}
}

func TestDiversityHighTradesScoreForVariety(t *testing.T) {
	t.Parallel()

	ranked := rankedCandidates()
	selected := diversify(ranked, DiversityHigh, 5)
	require.Len(t, selected, 5)

	// The most relevant paper always survives.
	assert.Equal(t, ranked[0], selected[0])

	// Lower-scored ICML papers displace same-venue repeats.
	venues := map[string]int{}
	for _, p := range selected {
		venues[p.Journal]++
	}
	assert.GreaterOrEqual(t, venues["ICML"], 1)
	assert.Less(t, venues["NeurIPS"], 5)
}

func TestDiversityDeterministicOnTies(t *testing.T) {
	t.Parallel()

	// Identical scores and axes: relevance (input) order wins, stably.
	papers := []DiscoveredPaper{}
	for i := range 10 {
		papers = append(papers, DiscoveredPaper{
			DOI:            fmt.Sprintf("10.1/tie.%d", i),
			Title:          fmt.Sprintf("Tie %d", i),
			Journal:        "Same Venue",
			Authors:        []string{"Same Author"},
			RelevanceScore: 0.5,
		})
	}

	first := diversify(papers, DiversityHigh, 4)
	for range 5 {
		assert.Equal(t, first, diversify(papers, DiversityHigh, 4))
	}
	assert.Equal(t, papers[:4], first)
}

func TestDiversityRespectsMaxResults(t *testing.T) {
	t.Parallel()

	ranked := rankedCandidates()
	assert.Len(t, diversify(ranked, DiversityMedium, 3), 3)
	assert.Len(t, diversify(ranked, DiversityMedium, 100), len(ranked))
	assert.Empty(t, diversify(nil, DiversityHigh, 10))
}
