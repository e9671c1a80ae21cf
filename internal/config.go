package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Mode names a discovery configuration family.
type Mode string

const (
	ModeQuick         Mode = "QUICK"
	ModeStandard      Mode = "STANDARD"
	ModeComprehensive Mode = "COMPREHENSIVE"
	ModeCustom        Mode = "CUSTOM"
)

// DiversityLevel controls the relevance/diversity tradeoff.
type DiversityLevel string

const (
	DiversityLow    DiversityLevel = "LOW"
	DiversityMedium DiversityLevel = "MEDIUM"
	DiversityHigh   DiversityLevel = "HIGH"
)

// _maxResultsCap is the hard ceiling on returned papers.
const _maxResultsCap = 100

// DiscoveryConfiguration enumerates every recognized discovery option.
// Configurations are value types; derive new ones rather than mutating.
type DiscoveryConfiguration struct {
	Mode Mode `json:"Mode"`

	IncludeCitationRegistry bool `json:"IncludeCitationRegistry"`
	IncludeSemanticCorpus   bool `json:"IncludeSemanticCorpus"`
	IncludeTrendAnalyzer    bool `json:"IncludeTrendAnalyzer"`

	MaxResults            int            `json:"MaxResults"`
	DiversityLevel        DiversityLevel `json:"DiversityLevel"`
	MaxExecutionTime      time.Duration  `json:"MaxExecutionTime"`
	MinRelevanceThreshold float64        `json:"MinRelevanceThreshold"`
	OpenAccessOnly        bool           `json:"OpenAccessOnly"`

	ExcludedVenues []string `json:"ExcludedVenues,omitempty"`

	// Optional inclusive publication date range, YYYY-MM-DD.
	PublishedAfter  string `json:"PublishedAfter,omitempty"`
	PublishedBefore string `json:"PublishedBefore,omitempty"`
}

// ComprehensiveConfig is the all-sources preset.
func ComprehensiveConfig() DiscoveryConfiguration {
	return DiscoveryConfiguration{
		Mode:                    ModeComprehensive,
		IncludeCitationRegistry: true,
		IncludeSemanticCorpus:   true,
		IncludeTrendAnalyzer:    true,
		MaxResults:              50,
		DiversityLevel:          DiversityMedium,
		MaxExecutionTime:        3 * time.Minute,
		MinRelevanceThreshold:   0.3,
	}
}

// QuickConfig is the low-latency preset. It skips the trend analyzer, which
// is the slowest of the three providers.
func QuickConfig() DiscoveryConfiguration {
	return DiscoveryConfiguration{
		Mode:                    ModeQuick,
		IncludeCitationRegistry: true,
		IncludeSemanticCorpus:   true,
		MaxResults:              20,
		DiversityLevel:          DiversityLow,
		MaxExecutionTime:        1 * time.Minute,
		MinRelevanceThreshold:   0.4,
	}
}

// Validate rejects out-of-range or unrecognized values before any I/O
// happens.
func (c DiscoveryConfiguration) Validate() error {
	switch c.Mode {
	case ModeQuick, ModeStandard, ModeComprehensive, ModeCustom:
	default:
		return configErrf("unrecognized mode %q", c.Mode)
	}
	switch c.DiversityLevel {
	case DiversityLow, DiversityMedium, DiversityHigh:
	default:
		return configErrf("unrecognized diversity level %q", c.DiversityLevel)
	}
	if c.MaxResults < 1 || c.MaxResults > _maxResultsCap {
		return configErrf("maxResults %d out of range [1,%d]", c.MaxResults, _maxResultsCap)
	}
	if c.MaxExecutionTime <= 0 {
		return configErrf("maxExecutionTime must be positive")
	}
	if c.MinRelevanceThreshold < 0 || c.MinRelevanceThreshold > 1 {
		return configErrf("minRelevanceThreshold %v out of range [0,1]", c.MinRelevanceThreshold)
	}
	if !c.IncludeCitationRegistry && !c.IncludeSemanticCorpus && !c.IncludeTrendAnalyzer {
		return configErrf("at least one source must be enabled")
	}
	for _, d := range []string{c.PublishedAfter, c.PublishedBefore} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return configErrf("invalid date %q", d)
		}
	}
	return nil
}

// normalized canonicalizes the configuration so semantically-equal
// configurations share a digest: the venue set is sorted and de-duped, and
// the threshold is rounded to 3 decimals.
func (c DiscoveryConfiguration) normalized() DiscoveryConfiguration {
	venues := make([]string, 0, len(c.ExcludedVenues))
	for _, v := range c.ExcludedVenues {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			venues = append(venues, v)
		}
	}
	slices.Sort(venues)
	c.ExcludedVenues = slices.Compact(venues)
	if len(c.ExcludedVenues) == 0 {
		c.ExcludedVenues = nil
	}
	c.MinRelevanceThreshold = math.Round(c.MinRelevanceThreshold*1000) / 1000
	return c
}

// digest hashes the normalized configuration. The rendering is positional,
// so adding options later changes every digest and naturally busts stale
// entries.
func (c DiscoveryConfiguration) digest() string {
	n := c.normalized()
	b2i := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	canonical := fmt.Sprintf("%s|%d%d%d|%d|%s|%d|%.3f|%d|%s|%s|%s",
		n.Mode,
		b2i(n.IncludeCitationRegistry), b2i(n.IncludeSemanticCorpus), b2i(n.IncludeTrendAnalyzer),
		n.MaxResults,
		n.DiversityLevel,
		n.MaxExecutionTime.Milliseconds(),
		n.MinRelevanceThreshold,
		b2i(n.OpenAccessOnly),
		strings.Join(n.ExcludedVenues, ","),
		n.PublishedAfter,
		n.PublishedBefore,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

// enabledSources returns the enabled sources in canonical enumeration order.
func (c DiscoveryConfiguration) enabledSources() []Source {
	srcs := make([]Source, 0, len(_allSources))
	if c.IncludeCitationRegistry {
		srcs = append(srcs, SourceCitationRegistry)
	}
	if c.IncludeSemanticCorpus {
		srcs = append(srcs, SourceSemanticCorpus)
	}
	if c.IncludeTrendAnalyzer {
		srcs = append(srcs, SourceTrendAnalyzer)
	}
	return srcs
}

// excludesVenue reports whether the (normalized) venue is excluded.
func (c DiscoveryConfiguration) excludesVenue(venue string) bool {
	if venue == "" || len(c.ExcludedVenues) == 0 {
		return false
	}
	_, found := slices.BinarySearch(c.ExcludedVenues, strings.ToLower(strings.TrimSpace(venue)))
	return found
}

// inDateRange reports whether a publication date satisfies the configured
// inclusive range. Papers with no date pass unless a range is set.
func (c DiscoveryConfiguration) inDateRange(date string) bool {
	if c.PublishedAfter == "" && c.PublishedBefore == "" {
		return true
	}
	if date == "" {
		return false
	}
	if c.PublishedAfter != "" && date < c.PublishedAfter {
		return false
	}
	if c.PublishedBefore != "" && date > c.PublishedBefore {
		return false
	}
	return true
}

// DiscoveryKey is the cache key for a (source paper, configuration) pair.
func DiscoveryKey(paperID string, c DiscoveryConfiguration) string {
	return fmt.Sprintf("d%s:%s", paperID, c.digest())
}

// DiscoveryKeyPrefix matches every configuration's entry for a paper.
func DiscoveryKeyPrefix(paperID string) string {
	return fmt.Sprintf("d%s:", paperID)
}
