package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Khan/genqlient/graphql"
	"github.com/blampe/paperglass/semcorpus"
	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"
)

// _semanticCorpusLimit is how many neighbors we ask the corpus for per run.
// The processor prunes aggressively, so we over-fetch relative to
// maxResults.
const _semanticCorpusLimit = 100

// SemanticCorpusClient discovers papers by embedding similarity plus author
// and venue connections. It only needs a title, so it works for papers with
// no DOI.
type SemanticCorpusClient struct {
	gql graphql.Client
}

var _ sourceClient = (*SemanticCorpusClient)(nil)

// NewSemanticCorpusClient creates a client against the corpus GraphQL
// endpoint.
func NewSemanticCorpusClient(gql graphql.Client) *SemanticCorpusClient {
	return &SemanticCorpusClient{gql: gql}
}

// NewSemanticCorpusGQL builds the GraphQL client with auth and throttling
// attached.
func NewSemanticCorpusGQL(endpoint, apiKey string, limiter *rate.Limiter) graphql.Client {
	var rt http.RoundTripper = errorProxyTransport{http.DefaultTransport}
	rt = retryTransport{RoundTripper: rt, attempts: 3, base: 250 * time.Millisecond}
	if apiKey != "" {
		rt = headerTransport{
			header:       http.Header{"X-Api-Key": []string{apiKey}},
			RoundTripper: rt,
		}
	}
	return graphql.NewClient(endpoint, &http.Client{
		Transport: throttledTransport{Limiter: limiter, RoundTripper: rt},
	})
}

// Source implements sourceClient.
func (c *SemanticCorpusClient) Source() Source {
	return SourceSemanticCorpus
}

// Discover implements sourceClient.
func (c *SemanticCorpusClient) Discover(ctx context.Context, paper SourcePaper) ([]DiscoveredPaper, json.RawMessage, error) {
	resp, err := semcorpus.Related(ctx, c.gql, paper.Title, paper.Authors, _semanticCorpusLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying corpus: %w", err)
	}

	papers := make([]DiscoveredPaper, 0, len(resp.Related))
	for _, r := range resp.Related {
		if r.Similarity < 0 || r.Similarity > 1 {
			return nil, nil, fmt.Errorf("%w: similarity %v out of range", errMalformed, r.Similarity)
		}
		authors := make([]string, 0, len(r.Authors))
		for _, a := range r.Authors {
			authors = append(authors, a.Name)
		}
		papers = append(papers, DiscoveredPaper{
			DOI:                  r.Doi,
			Title:                r.Title,
			Authors:              authors,
			Abstract:             r.Abstract,
			PublicationDate:      r.PublishedAt,
			Year:                 r.Year,
			Journal:              r.Venue,
			Field:                r.Field,
			CitationCount:        r.CitationCount,
			InfluentialCitations: r.InfluentialCitationCount,
			ReferenceCount:       r.ReferenceCount,
			OpenAccess:           r.OpenAccess,
			ProviderRelevance:    r.Similarity,
			SourceReliability:    _sourceReliability[SourceSemanticCorpus],
			DiscoverySource:      SourceSemanticCorpus,
			RelationshipType:     corpusRelationship(r.Connection),
		})
	}

	meta, _ := sonic.Marshal(map[string]int{"related": len(resp.Related)})
	return papers, meta, nil
}

// corpusRelationship maps the corpus's connection tag onto our enum,
// defaulting to plain semantic similarity.
func corpusRelationship(connection string) RelationshipType {
	switch connection {
	case "author":
		return RelationshipAuthor
	case "venue":
		return RelationshipVenue
	case "methodology":
		return RelationshipMethodology
	default:
		return RelationshipSemantic
	}
}
