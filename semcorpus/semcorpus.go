// Package semcorpus holds the Semantic-Corpus GraphQL operations. The types
// mirror genqlient's generated shape so the adapter reads the same as any
// other GraphQL client in the codebase.
package semcorpus

import (
	"context"

	"github.com/Khan/genqlient/graphql"
)

// RelatedAuthor is an author on a related paper.
type RelatedAuthor struct {
	Name string `json:"name"`
}

// RelatedPaper is one candidate returned by the related query.
type RelatedPaper struct {
	Doi                      string          `json:"doi"`
	Title                    string          `json:"title"`
	Authors                  []RelatedAuthor `json:"authors"`
	Abstract                 string          `json:"abstract"`
	PublishedAt              string          `json:"publishedAt"`
	Year                     int             `json:"year"`
	Venue                    string          `json:"venue"`
	Field                    string          `json:"field"`
	CitationCount            *int64          `json:"citationCount"`
	InfluentialCitationCount int64           `json:"influentialCitationCount"`
	ReferenceCount           int64           `json:"referenceCount"`
	OpenAccess               bool            `json:"openAccess"`
	Similarity               float64         `json:"similarity"`
	Connection               string          `json:"connection"`
}

// RelatedResponse is returned by Related.
type RelatedResponse struct {
	Related []RelatedPaper `json:"related"`
}

// __RelatedInput is used internally by genqlient-shaped requests.
type __RelatedInput struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Limit   int      `json:"limit"`
}

// The query used by the `Related` function.
const Related_Operation = `
query Related ($title: String!, $authors: [String!], $limit: Int!) {
	related(title: $title, authors: $authors, limit: $limit) {
		doi
		title
		authors {
			name
		}
		abstract
		publishedAt
		year
		venue
		field
		citationCount
		influentialCitationCount
		referenceCount
		openAccess
		similarity
		connection
	}
}
`

// Related returns papers semantically similar to the given title, plus
// author- and venue-connected neighbors.
func Related(
	ctx context.Context,
	client graphql.Client,
	title string,
	authors []string,
	limit int,
) (*RelatedResponse, error) {
	req := &graphql.Request{
		OpName: "Related",
		Query:  Related_Operation,
		Variables: &__RelatedInput{
			Title:   title,
			Authors: authors,
			Limit:   limit,
		},
	}
	var err error

	var data RelatedResponse
	resp := &graphql.Response{Data: &data}

	err = client.MakeRequest(
		ctx,
		req,
		resp,
	)

	return &data, err
}
