package internal

import (
	"encoding/json"
	"time"
)

// Source identifies one of the external bibliographic providers.
type Source string

// Enumeration order here is the canonical order of sourceResults, regardless
// of completion order.
const (
	SourceCitationRegistry Source = "citation-registry"
	SourceSemanticCorpus   Source = "semantic-corpus"
	SourceTrendAnalyzer    Source = "trend-analyzer"
)

var _allSources = []Source{SourceCitationRegistry, SourceSemanticCorpus, SourceTrendAnalyzer}

// _sourcePriority breaks dedup ties: lower wins.
var _sourcePriority = map[Source]int{
	SourceCitationRegistry: 0,
	SourceSemanticCorpus:   1,
	SourceTrendAnalyzer:    2,
}

// RelationshipType describes how a discovered paper relates to the source
// paper.
type RelationshipType string

const (
	RelationshipCites       RelationshipType = "CITES"
	RelationshipCitedBy     RelationshipType = "CITED_BY"
	RelationshipSemantic    RelationshipType = "SEMANTIC_SIMILARITY"
	RelationshipAuthor      RelationshipType = "AUTHOR_CONNECTION"
	RelationshipVenue       RelationshipType = "VENUE_SIMILARITY"
	RelationshipTopic       RelationshipType = "TOPIC_SIMILARITY"
	RelationshipMethodology RelationshipType = "METHODOLOGY_SIMILARITY"
	RelationshipTemporal    RelationshipType = "TEMPORAL_RELATIONSHIP"
)

// SourcePaper is the query subject. It is read-only input.
type SourcePaper struct {
	ID       string   `json:"Id"`
	Title    string   `json:"Title"`
	Authors  []string `json:"Authors,omitempty"`
	DOI      string   `json:"Doi,omitempty"`
	ArxivID  string   `json:"ArxivId,omitempty"`
	CorpusID string   `json:"CorpusId,omitempty"`
	Abstract string   `json:"Abstract,omitempty"`
	Year     int      `json:"Year,omitempty"`
}

// DiscoveredPaper is a candidate related paper. Instances are materialized
// from provider responses, scored, filtered, and then either discarded or
// embedded in a UnifiedDiscoveryResult. They have no identity outside one run.
type DiscoveredPaper struct {
	DOI             string            `json:"Doi,omitempty"`
	SourceIDs       map[string]string `json:"SourceIds,omitempty"`
	Title           string            `json:"Title"`
	Authors         []string          `json:"Authors,omitempty"`
	Abstract        string            `json:"Abstract,omitempty"`
	PublicationDate string            `json:"PublicationDate,omitempty"` // YYYY-MM-DD
	Year            int               `json:"Year,omitempty"`
	Journal         string            `json:"Journal,omitempty"`
	Field           string            `json:"Field,omitempty"` // Primary topical field.

	CitationCount        *int64 `json:"CitationCount,omitempty"` // nil when the provider doesn't know.
	InfluentialCitations int64  `json:"InfluentialCitations,omitempty"`
	ReferenceCount       int64  `json:"ReferenceCount,omitempty"`
	OpenAccess           bool   `json:"OpenAccess,omitempty"`

	// ProviderRelevance is the source's raw score in [0,1]. RelevanceScore is
	// the unified score assigned during synthesis.
	ProviderRelevance float64 `json:"ProviderRelevance"`
	RelevanceScore    float64 `json:"RelevanceScore"`
	SourceReliability float64 `json:"SourceReliability"`
	DataCompleteness  float64 `json:"DataCompleteness"`

	DiscoverySource  Source           `json:"DiscoverySource"`
	RelationshipType RelationshipType `json:"RelationshipType"`

	// Metadata is an opaque provider blob. Nothing in the core parses it.
	Metadata json.RawMessage `json:"Metadata,omitempty"`
}

// citations returns the citation count, treating unknown as zero.
func (p DiscoveredPaper) citations() int64 {
	if p.CitationCount == nil {
		return 0
	}
	return *p.CitationCount
}

// publicationYear prefers the explicit year and falls back to the date.
func (p DiscoveredPaper) publicationYear() int {
	if p.Year != 0 {
		return p.Year
	}
	if t, err := time.Parse("2006-01-02", p.PublicationDate); err == nil {
		return t.Year()
	}
	return 0
}

// SourceError is a classified per-source failure.
type SourceError struct {
	Kind    ErrorKind `json:"Kind"`
	Message string    `json:"Message,omitempty"`
}

// SourceDiscoveryResult is the per-source outcome of one run. Every enabled
// source produces exactly one, failed or not.
type SourceDiscoveryResult struct {
	Source   Source            `json:"Source"`
	Success  bool              `json:"Success"`
	Papers   []DiscoveredPaper `json:"Papers,omitempty"`
	Metadata json.RawMessage   `json:"Metadata,omitempty"`
	Duration time.Duration     `json:"Duration"`
	Err      *SourceError      `json:"Error,omitempty"`
}

// SynthesisMetadata describes how a result was assembled.
type SynthesisMetadata struct {
	TotalRawResults   int                      `json:"TotalRawResults"`
	TotalAfterDedup   int                      `json:"TotalAfterDedup"`
	TotalReturned     int                      `json:"TotalReturned"`
	SucceededSources  []Source                 `json:"SucceededSources"`
	FailedSources     []Source                 `json:"FailedSources"`
	ProcessingTime    time.Duration            `json:"ProcessingTime"`
	OverallConfidence float64                  `json:"OverallConfidence"`
	StageDurations    map[string]time.Duration `json:"StageDurations,omitempty"`
}

// UnifiedDiscoveryResult is the final value of one discovery run. It is
// constructed once per (source paper, configuration) pair and never mutated.
type UnifiedDiscoveryResult struct {
	SourcePaper   SourcePaper             `json:"SourcePaper"`
	Papers        []DiscoveredPaper       `json:"Papers"`
	SourceResults []SourceDiscoveryResult `json:"SourceResults"`
	Synthesis     SynthesisMetadata       `json:"Synthesis"`
	Configuration DiscoveryConfiguration  `json:"Configuration"`
}

// FeedbackEvent records a user's reaction to a discovered paper. Rating is
// normalized into [0,1]. Feedback never retroactively changes a cached
// result; it biases only future cold computations.
type FeedbackEvent struct {
	UserID            string  `json:"UserId"`
	SourcePaperID     string  `json:"SourcePaperId"`
	DiscoveredPaperID string  `json:"DiscoveredPaperId"` // DOI when known, else a normalized title.
	FeedbackType      string  `json:"FeedbackType"`
	Rating            float64 `json:"Rating"`
}
