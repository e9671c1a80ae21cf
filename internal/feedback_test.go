package internal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackBias(t *testing.T) {
	t.Parallel()

	s := newFeedbackStore()
	paper := DiscoveredPaper{DOI: "10.1/a", Title: "Graph Attention Networks"}

	// No feedback, no bias.
	assert.Equal(t, 0.0, s.bias("P1", paper))

	// Unanimous praise maxes out the bias.
	for range 5 {
		require.NoError(t, s.Record(FeedbackEvent{
			SourcePaperID:     "P1",
			DiscoveredPaperID: "10.1/A", // Case-insensitive DOI key.
			FeedbackType:      "rating",
			Rating:            1.0,
		}))
	}
	assert.InDelta(t, 0.05, s.bias("P1", paper), 0.0001)

	// Unanimous rejection bottoms out.
	for range 5 {
		require.NoError(t, s.Record(FeedbackEvent{
			SourcePaperID:     "P2",
			DiscoveredPaperID: "10.1/a",
			FeedbackType:      "rating",
			Rating:            0.0,
		}))
	}
	assert.InDelta(t, -0.05, s.bias("P2", paper), 0.0001)

	// Mixed feedback averages out.
	require.NoError(t, s.Record(FeedbackEvent{SourcePaperID: "P3", DiscoveredPaperID: "10.1/a", Rating: 1.0}))
	require.NoError(t, s.Record(FeedbackEvent{SourcePaperID: "P3", DiscoveredPaperID: "10.1/a", Rating: 0.0}))
	assert.InDelta(t, 0.0, s.bias("P3", paper), 0.0001)

	// Feedback on one source paper doesn't leak to another.
	assert.Equal(t, 0.0, s.bias("P4", paper))
}

func TestFeedbackTitleKey(t *testing.T) {
	t.Parallel()

	s := newFeedbackStore()

	// Papers without DOIs key by normalized title.
	require.NoError(t, s.Record(FeedbackEvent{
		SourcePaperID:     "P1",
		DiscoveredPaperID: "Graph Attention Networks!",
		Rating:            1.0,
	}))

	paper := DiscoveredPaper{Title: "graph attention networks"}
	assert.InDelta(t, 0.05, s.bias("P1", paper), 0.0001)
}

func TestFeedbackValidation(t *testing.T) {
	t.Parallel()

	s := newFeedbackStore()
	assert.Error(t, s.Record(FeedbackEvent{DiscoveredPaperID: "10.1/a", Rating: 0.5}))
	assert.Error(t, s.Record(FeedbackEvent{SourcePaperID: "P1", Rating: 0.5}))
	assert.Error(t, s.Record(FeedbackEvent{SourcePaperID: "P1", DiscoveredPaperID: "10.1/a", Rating: 1.5}))
	assert.Error(t, s.Record(FeedbackEvent{SourcePaperID: "P1", DiscoveredPaperID: "10.1/a", Rating: -0.5}))
}

func TestFeedbackConcurrentRecords(t *testing.T) {
	t.Parallel()

	s := newFeedbackStore()
	wg := sync.WaitGroup{}
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Record(FeedbackEvent{SourcePaperID: "P1", DiscoveredPaperID: "10.1/a", Rating: 1.0})
		}()
	}
	wg.Wait()

	stats, ok := s.stats.Load(feedbackKey{sourcePaperID: "P1", paperKey: "10.1/a"})
	require.True(t, ok)
	assert.Equal(t, int64(100), stats.count)
}
