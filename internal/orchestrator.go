package internal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// _discoveryTTL is how long a synthesized result stays valid in the
// persistent tier. The memory tier caps its copies at 8 hours regardless.
var _discoveryTTL = 24 * time.Hour

// Orchestrator is the single entry point for related-paper discovery. It
// owns the cache read-through, the parallel fan-out across source clients,
// deadline enforcement, synthesis, and write-back.
//
// Concurrent requests for the same (paper, configuration) key coalesce into
// one underlying discovery via a singleflight group; this is the cache's
// single-flight invariant.
type Orchestrator struct {
	cache    cache[[]byte]
	clients  map[Source]sourceClient
	group    singleflight.Group
	feedback *feedbackStore
	proc     processor
	metrics  *discoveryMetrics
}

// NewOrchestrator creates an orchestrator over the given cache and source
// clients.
func NewOrchestrator(cache cache[[]byte], reg *prometheus.Registry, clients ...sourceClient) *Orchestrator {
	bySource := map[Source]sourceClient{}
	for _, c := range clients {
		bySource[c.Source()] = c
	}

	feedback := newFeedbackStore()
	o := &Orchestrator{
		cache:    cache,
		clients:  bySource,
		feedback: feedback,
		proc:     processor{feedback: feedback, now: time.Now},
		metrics:  newDiscoveryMetrics(reg),
	}

	// Log orchestrator stats every minute.
	go func() {
		ctx := context.Background()
		for {
			time.Sleep(1 * time.Minute)
			Log(ctx).Debug("discovery stats",
				"droppedCandidates", o.metrics.droppedCandidatesGet(),
			)
		}
	}()

	return o
}

// Discover returns related papers for the given source paper, serving from
// cache when possible. It raises only for invalid configurations and
// internal invariant violations; provider failures are reported inside the
// result's SourceResults.
func (o *Orchestrator) Discover(ctx context.Context, paper SourcePaper, cfg DiscoveryConfiguration) (*UnifiedDiscoveryResult, error) {
	if paper.ID == "" || strings.TrimSpace(paper.Title) == "" {
		return nil, configErrf("source paper needs an id and a title")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	norm := cfg.normalized()
	key := DiscoveryKey(paper.ID, norm)

	v, err, _ := o.group.Do(key, func() (any, error) {
		if cached, _, ok := o.cache.GetWithTTL(ctx, key); ok {
			var result UnifiedDiscoveryResult
			if err := sonic.ConfigStd.Unmarshal(cached, &result); err == nil {
				return &result, nil
			}
			// A corrupt entry shouldn't wedge the key until its TTL.
			Log(ctx).Warn("expiring unreadable cache entry", "key", key)
			_ = o.cache.Expire(ctx, key)
		}

		result := o.run(ctx, paper, norm)
		if err := validateResult(result, norm); err != nil {
			return nil, err
		}
		o.writeBack(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UnifiedDiscoveryResult), nil
}

// RecordFeedback accumulates a feedback event for use by future cold
// discovery runs. Cached results are never retroactively rescored.
func (o *Orchestrator) RecordFeedback(ev FeedbackEvent) error {
	if err := o.feedback.Record(ev); err != nil {
		return err
	}
	o.metrics.feedbackInc()
	return nil
}

// run executes one cold discovery: fan out to every enabled source under the
// configured deadline, then synthesize.
func (o *Orchestrator) run(ctx context.Context, paper SourcePaper, cfg DiscoveryConfiguration) *UnifiedDiscoveryResult {
	start := time.Now()
	o.metrics.discoveriesInc()

	srcs := cfg.enabledSources()
	fanoutCtx, cancel := context.WithTimeout(ctx, cfg.MaxExecutionTime)
	defer cancel()

	type outcome struct {
		idx    int
		result SourceDiscoveryResult
	}

	// Buffered so abandoned tasks can still deliver (into the void) without
	// leaking goroutines.
	resultC := make(chan outcome, len(srcs))
	for i, src := range srcs {
		go func() {
			resultC <- outcome{i, o.discoverSource(fanoutCtx, src, paper)}
		}()
	}

	// Results land in enumeration order regardless of completion order.
	results := make([]SourceDiscoveryResult, len(srcs))
	done := make([]bool, len(srcs))
	pending := len(srcs)
	for pending > 0 {
		select {
		case out := <-resultC:
			results[out.idx] = out.result
			done[out.idx] = true
			pending--
		case <-fanoutCtx.Done():
			// Deadline. Stragglers are logically abandoned: whatever they
			// eventually produce is discarded.
			for i, src := range srcs {
				if done[i] {
					continue
				}
				results[i] = SourceDiscoveryResult{
					Source:   src,
					Duration: time.Since(start),
					Err:      &SourceError{Kind: ErrorKindTimeout, Message: fanoutCtx.Err().Error()},
				}
				o.metrics.sourceOutcomeInc(src, string(ErrorKindTimeout))
			}
			pending = 0
		}
	}
	fanoutDur := time.Since(start)

	synthStart := time.Now()
	syn := o.proc.synthesize(paper, cfg, results)
	o.metrics.droppedCandidatesAdd(syn.dropped)
	synthDur := time.Since(synthStart)

	divStart := time.Now()
	papers := diversify(syn.papers, cfg.DiversityLevel, cfg.MaxResults)
	divDur := time.Since(divStart)

	succeeded, failed := []Source{}, []Source{}
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r.Source)
		} else {
			failed = append(failed, r.Source)
		}
	}

	result := &UnifiedDiscoveryResult{
		SourcePaper:   paper,
		Papers:        papers,
		SourceResults: results,
		Synthesis: SynthesisMetadata{
			TotalRawResults:   syn.totalRaw,
			TotalAfterDedup:   syn.afterDedup,
			TotalReturned:     len(papers),
			SucceededSources:  succeeded,
			FailedSources:     failed,
			ProcessingTime:    time.Since(start),
			OverallConfidence: confidence(len(succeeded), len(srcs), syn.totalRaw, papers),
			StageDurations: map[string]time.Duration{
				"fanout":    fanoutDur,
				"synthesis": synthDur,
				"diversity": divDur,
			},
		},
		Configuration: cfg,
	}

	o.metrics.durationObserve(time.Since(start))
	return result
}

// discoverSource invokes one client and converts whatever happens into a
// SourceDiscoveryResult. It never propagates a failure.
func (o *Orchestrator) discoverSource(ctx context.Context, src Source, paper SourcePaper) (result SourceDiscoveryResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			Log(ctx).Error("panic in source client", "source", src, "details", r)
			result = SourceDiscoveryResult{
				Source:   src,
				Duration: time.Since(start),
				Err:      &SourceError{Kind: ErrorKindUnavailable, Message: fmt.Sprint(r)},
			}
		}
	}()

	client, ok := o.clients[src]
	if !ok {
		return SourceDiscoveryResult{
			Source: src,
			Err:    &SourceError{Kind: ErrorKindUnavailable, Message: "no client registered"},
		}
	}

	papers, meta, err := client.Discover(ctx, paper)
	duration := time.Since(start)
	if err != nil {
		kind := classifyErr(err)
		Log(ctx).Warn("source discovery failed", "source", src, "kind", kind, "err", err)
		o.metrics.sourceOutcomeInc(src, string(kind))
		return SourceDiscoveryResult{
			Source:   src,
			Duration: duration,
			Err:      &SourceError{Kind: kind, Message: err.Error()},
		}
	}

	o.metrics.sourceOutcomeInc(src, "success")
	return SourceDiscoveryResult{
		Source:   src,
		Success:  true,
		Papers:   papers,
		Metadata: meta,
		Duration: duration,
	}
}

// confidence blends the source success rate with the mean unified score of
// what we're returning. A run that produced nothing at all has no basis for
// confidence.
func confidence(succeeded, enabled, totalRaw int, papers []DiscoveredPaper) float64 {
	if succeeded == 0 || (totalRaw == 0 && len(papers) == 0) {
		return 0
	}
	avg := 0.0
	if len(papers) > 0 {
		sum := 0.0
		for _, p := range papers {
			sum += p.RelevanceScore
		}
		avg = sum / float64(len(papers))
	}
	return 0.4*float64(succeeded)/float64(enabled) + 0.6*avg
}

// writeBack caches the result unless it looks like a retryable failure: runs
// where a source failed and nothing came back are left uncached so the next
// call tries again.
func (o *Orchestrator) writeBack(ctx context.Context, key string, result *UnifiedDiscoveryResult) {
	if len(result.Synthesis.SucceededSources) == 0 {
		return
	}
	if len(result.Synthesis.FailedSources) > 0 && len(result.Papers) == 0 {
		return
	}

	out, err := sonic.ConfigStd.Marshal(result)
	if err != nil {
		Log(ctx).Warn("problem serializing result", "key", key, "err", err)
		return
	}
	o.cache.Set(ctx, key, out, fuzz(_discoveryTTL, 1.5))
}

// validateResult double-checks the synthesis invariants before a result
// escapes. A violation here is a bug, not a provider problem.
func validateResult(r *UnifiedDiscoveryResult, cfg DiscoveryConfiguration) error {
	if len(r.Papers) > min(cfg.MaxResults, _maxResultsCap) {
		return &InvariantError{Detail: fmt.Sprintf("returned %d papers over cap %d", len(r.Papers), cfg.MaxResults)}
	}
	for _, p := range r.Papers {
		if p.RelevanceScore < 0 || p.RelevanceScore > 1 {
			return &InvariantError{Detail: fmt.Sprintf("score %v out of bounds for %q", p.RelevanceScore, p.Title)}
		}
		if p.RelevanceScore < cfg.MinRelevanceThreshold {
			return &InvariantError{Detail: fmt.Sprintf("score %v under threshold %v for %q", p.RelevanceScore, cfg.MinRelevanceThreshold, p.Title)}
		}
	}
	if len(r.SourceResults) != len(cfg.enabledSources()) {
		return &InvariantError{Detail: "source results don't cover enabled sources"}
	}
	return nil
}

// fuzz scales the given duration into the range (d, d * f) so cache entries
// don't all expire in lockstep.
func fuzz(d time.Duration, f float64) time.Duration {
	if f < 1.0 {
		f += 1.0
	}
	factor := 1.0 + rand.Float64()*(f-1.0)
	return time.Duration(float64(d) * factor)
}
