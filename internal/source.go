package internal

import (
	"context"
	"encoding/json"
)

// Per-source reliability priors, folded into each candidate.
var _sourceReliability = map[Source]float64{
	SourceCitationRegistry: 0.95,
	SourceSemanticCorpus:   0.85,
	SourceTrendAnalyzer:    0.7,
}

// sourceClient is the adapter contract every provider implements. Clients
// are stateless from the orchestrator's view and must be safe for concurrent
// calls.
//
// Discover returns candidates plus opaque per-source metadata. A client that
// needs an identifier the paper lacks returns success with an empty list,
// not an error. Retries, rate limits, and degraded modes are the client's
// own concern; the orchestrator never retries.
type sourceClient interface {
	Source() Source
	Discover(ctx context.Context, paper SourcePaper) ([]DiscoveredPaper, json.RawMessage, error)
}
