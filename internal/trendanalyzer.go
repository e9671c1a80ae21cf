package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// _trendCacheTTL bounds how long a topic's trend snapshot is reused. Trends
// move slowly; re-querying per discovery would waste the provider's small
// rate budget.
const _trendCacheTTL = 10 * time.Minute

// TrendAnalyzerClient discovers papers that are currently gaining traction
// around the source paper's topic. It returns fewer but more contextual
// results than the other sources, frequently open-access preprints.
type TrendAnalyzerClient struct {
	upstream *http.Client
	recent   *expirable.LRU[string, []taPaper]
}

var _ sourceClient = (*TrendAnalyzerClient)(nil)

// NewTrendAnalyzerClient creates a client over the given upstream.
func NewTrendAnalyzerClient(upstream *http.Client) *TrendAnalyzerClient {
	return &TrendAnalyzerClient{
		upstream: upstream,
		recent:   expirable.NewLRU[string, []taPaper](256, nil, _trendCacheTTL),
	}
}

// Source implements sourceClient.
func (c *TrendAnalyzerClient) Source() Source {
	return SourceTrendAnalyzer
}

type taPaper struct {
	DOI     string   `json:"doi"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Date    string   `json:"date"`
	Venue   string   `json:"venue"`
	Topic   string   `json:"topic"`
	Cites   *int64   `json:"cites"`
	OA      bool     `json:"oa"`
	Hotness float64  `json:"hotness"` // 0..1
	Window  string   `json:"window"`  // e.g. "90d"
}

type taResponse struct {
	Results []taPaper `json:"results"`
}

// Discover implements sourceClient.
func (c *TrendAnalyzerClient) Discover(ctx context.Context, paper SourcePaper) ([]DiscoveredPaper, json.RawMessage, error) {
	topic := normalizeTitle(paper.Title)
	if topic == "" {
		return nil, nil, nil
	}

	trending, ok := c.recent.Get(topic)
	if !ok {
		var err error
		trending, err = c.fetch(ctx, topic)
		if err != nil {
			return nil, nil, err
		}
		c.recent.Add(topic, trending)
	}

	papers := make([]DiscoveredPaper, 0, len(trending))
	for _, t := range trending {
		rel := RelationshipTopic
		if t.Window != "" {
			rel = RelationshipTemporal
		}
		papers = append(papers, DiscoveredPaper{
			DOI:               t.DOI,
			Title:             t.Title,
			Authors:           t.Authors,
			PublicationDate:   t.Date,
			Journal:           t.Venue,
			Field:             t.Topic,
			CitationCount:     t.Cites,
			OpenAccess:        t.OA,
			ProviderRelevance: clamp01(t.Hotness),
			SourceReliability: _sourceReliability[SourceTrendAnalyzer],
			DiscoverySource:   SourceTrendAnalyzer,
			RelationshipType:  rel,
		})
	}

	meta, _ := sonic.Marshal(map[string]any{"topic": topic, "results": len(trending)})
	return papers, meta, nil
}

func (c *TrendAnalyzerClient) fetch(ctx context.Context, topic string) ([]taPaper, error) {
	u := fmt.Sprintf("/v1/trending?topic=%s&limit=25", url.QueryEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.upstream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching trends: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var page taResponse
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decoding trends: %w", errMalformed, err)
	}
	return page.Results, nil
}
