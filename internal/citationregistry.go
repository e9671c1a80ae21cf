package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"
)

// CitationRegistryClient discovers papers through the citation graph. It is
// the best source for CITES/CITED_BY relationships. Lookups are keyed by DOI
// or arXiv ID; papers with neither yield an empty success.
type CitationRegistryClient struct {
	upstream *http.Client
}

var _ sourceClient = (*CitationRegistryClient)(nil)

// NewCitationRegistryClient creates a client over the given upstream, which
// should come from NewUpstream so it carries the retry and throttle budget.
func NewCitationRegistryClient(upstream *http.Client) *CitationRegistryClient {
	return &CitationRegistryClient{upstream: upstream}
}

// Source implements sourceClient.
func (c *CitationRegistryClient) Source() Source {
	return SourceCitationRegistry
}

// crEdge is one citation-graph neighbor on the wire.
type crEdge struct {
	DOI     string `json:"doi"`
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Abstract                 string          `json:"abstract"`
	Published                string          `json:"published"` // YYYY-MM-DD
	Year                     int             `json:"year"`
	Venue                    string          `json:"venue"`
	Field                    string          `json:"fieldOfStudy"`
	CitationCount            *int64          `json:"citationCount"`
	InfluentialCitationCount int64           `json:"influentialCitationCount"`
	ReferenceCount           int64           `json:"referenceCount"`
	IsOpenAccess             bool            `json:"isOpenAccess"`
	Score                    float64         `json:"score"`
	Extra                    json.RawMessage `json:"extra"`
}

type crPage struct {
	Data  []crEdge `json:"data"`
	Total int      `json:"total"`
}

// Discover fetches the paper's citations and references concurrently and
// maps them onto candidates.
func (c *CitationRegistryClient) Discover(ctx context.Context, paper SourcePaper) ([]DiscoveredPaper, json.RawMessage, error) {
	ident := paper.DOI
	if ident == "" && paper.ArxivID != "" {
		ident = "arXiv:" + paper.ArxivID
	}
	if ident == "" {
		// Nothing to walk the graph from. Not a failure.
		return nil, nil, nil
	}

	var citations, references crPage

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.fetch(ctx, ident, "citations", &citations)
	})
	g.Go(func() error {
		return c.fetch(ctx, ident, "references", &references)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	papers := make([]DiscoveredPaper, 0, len(citations.Data)+len(references.Data))
	for _, e := range citations.Data {
		papers = append(papers, c.asPaper(e, RelationshipCitedBy))
	}
	for _, e := range references.Data {
		papers = append(papers, c.asPaper(e, RelationshipCites))
	}

	meta, _ := sonic.Marshal(map[string]int{
		"citations":  citations.Total,
		"references": references.Total,
	})
	return papers, meta, nil
}

func (c *CitationRegistryClient) fetch(ctx context.Context, ident, edge string, page *crPage) error {
	u := fmt.Sprintf("/v1/paper/%s/%s?limit=100", url.PathEscape(ident), edge)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.upstream.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", edge, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(page); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", errMalformed, edge, err)
	}
	return nil
}

func (c *CitationRegistryClient) asPaper(e crEdge, rel RelationshipType) DiscoveredPaper {
	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		authors = append(authors, a.Name)
	}
	return DiscoveredPaper{
		DOI:                  e.DOI,
		Title:                e.Title,
		Authors:              authors,
		Abstract:             e.Abstract,
		PublicationDate:      e.Published,
		Year:                 e.Year,
		Journal:              e.Venue,
		Field:                e.Field,
		CitationCount:        e.CitationCount,
		InfluentialCitations: e.InfluentialCitationCount,
		ReferenceCount:       e.ReferenceCount,
		OpenAccess:           e.IsOpenAccess,
		ProviderRelevance:    clamp01(e.Score),
		SourceReliability:    _sourceReliability[SourceCitationRegistry],
		DiscoverySource:      SourceCitationRegistry,
		RelationshipType:     rel,
		Metadata:             e.Extra,
	}
}

func clamp01(f float64) float64 {
	return max(0, min(1, f))
}
