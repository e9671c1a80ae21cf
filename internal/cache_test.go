package internal

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTier(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	c, err := NewMemoryCache(nil)
	require.NoError(t, err)

	c.Set(ctx, "k1", []byte("v1"), time.Hour)

	// Ristretto admission is asynchronous.
	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k1")
		return ok
	}, time.Second, 10*time.Millisecond)

	value, ttl, ok := c.GetWithTTL(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	require.NoError(t, c.Expire(ctx, "k1"))
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k1")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok = c.Get(ctx, "never-set")
	assert.False(t, ok)
}

func TestMemoryCacheTTLCap(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	c, err := NewMemoryCache(nil)
	require.NoError(t, err)

	// Long-lived entries are capped at the memory tier's expiry.
	c.Set(ctx, "k1", []byte("v1"), 30*24*time.Hour)
	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k1")
		return ok
	}, time.Second, 10*time.Millisecond)

	_, ttl, ok := c.GetWithTTL(ctx, "k1")
	require.True(t, ok)
	assert.LessOrEqual(t, ttl, _memoryTTL)
}

func TestResultRoundTrip(t *testing.T) {
	t.Parallel()

	// A serialized result read back must be structurally equal.
	original := &UnifiedDiscoveryResult{
		SourcePaper: testPaper,
		Papers: []DiscoveredPaper{
			candidate("10.1/a", "Graph Attention Networks", 0.9, 500, SourceCitationRegistry),
		},
		SourceResults: []SourceDiscoveryResult{
			{
				Source:   SourceCitationRegistry,
				Success:  true,
				Papers:   []DiscoveredPaper{candidate("10.1/a", "Graph Attention Networks", 0.9, 500, SourceCitationRegistry)},
				Metadata: []byte(`{"citations":1,"references":0}`),
				Duration: 123 * time.Millisecond,
			},
			{
				Source:   SourceSemanticCorpus,
				Duration: 456 * time.Millisecond,
				Err:      &SourceError{Kind: ErrorKindUnavailable, Message: "status 503"},
			},
		},
		Synthesis: SynthesisMetadata{
			TotalRawResults:   1,
			TotalAfterDedup:   1,
			TotalReturned:     1,
			SucceededSources:  []Source{SourceCitationRegistry},
			FailedSources:     []Source{SourceSemanticCorpus},
			ProcessingTime:    200 * time.Millisecond,
			OverallConfidence: 0.74,
			StageDurations: map[string]time.Duration{
				"fanout":    150 * time.Millisecond,
				"synthesis": 30 * time.Millisecond,
				"diversity": 20 * time.Millisecond,
			},
		},
		Configuration: QuickConfig().normalized(),
	}
	original.Papers[0].RelevanceScore = 0.9
	original.Papers[0].DataCompleteness = 1.0

	serialized, err := sonic.ConfigStd.Marshal(original)
	require.NoError(t, err)

	var decoded UnifiedDiscoveryResult
	require.NoError(t, sonic.ConfigStd.Unmarshal(serialized, &decoded))
	assert.Equal(t, original, &decoded)
}

func TestResultForwardCompatibleRead(t *testing.T) {
	t.Parallel()

	// Unknown scalar fields on a persisted blob must be ignored on read.
	blob := []byte(`{
		"SourcePaper": {"Id": "P1", "Title": "T", "FutureField": 42},
		"Papers": [],
		"SourceResults": [],
		"Synthesis": {"TotalReturned": 0, "SucceededSources": [], "FailedSources": [], "NewMetric": 0.5},
		"Configuration": {"Mode": "QUICK", "MaxResults": 20, "DiversityLevel": "LOW"}
	}`)

	var decoded UnifiedDiscoveryResult
	require.NoError(t, sonic.ConfigStd.Unmarshal(blob, &decoded))
	assert.Equal(t, "P1", decoded.SourcePaper.ID)
	assert.Equal(t, 20, decoded.Configuration.MaxResults)
}
