package internal

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// _feedbackBiasLimit bounds how far accumulated feedback can move a unified
// score in either direction.
const _feedbackBiasLimit = 0.05

// feedbackStore accumulates per-(source paper, discovered paper) feedback.
// It only ever influences the next cold computation; cached results are
// immutable.
type feedbackStore struct {
	stats *xsync.MapOf[feedbackKey, feedbackStats]
}

type feedbackKey struct {
	sourcePaperID string
	paperKey      string
}

type feedbackStats struct {
	sum   float64
	count int64
}

func newFeedbackStore() *feedbackStore {
	return &feedbackStore{stats: xsync.NewMapOf[feedbackKey, feedbackStats]()}
}

// Record accumulates one feedback event. Ratings outside [0,1] are rejected.
func (s *feedbackStore) Record(ev FeedbackEvent) error {
	if ev.SourcePaperID == "" || ev.DiscoveredPaperID == "" {
		return errBadRequest
	}
	if ev.Rating < 0 || ev.Rating > 1 {
		return errBadRequest
	}

	key := feedbackKey{
		sourcePaperID: ev.SourcePaperID,
		paperKey:      normalizePaperKey(ev.DiscoveredPaperID),
	}
	s.stats.Compute(key, func(old feedbackStats, _ bool) (feedbackStats, bool) {
		return feedbackStats{sum: old.sum + ev.Rating, count: old.count + 1}, false
	})
	return nil
}

// bias maps the all-time mean rating linearly into [-0.05, +0.05]. No
// feedback means no bias.
func (s *feedbackStore) bias(sourcePaperID string, p DiscoveredPaper) float64 {
	id := p.DOI
	if id == "" {
		id = p.Title
	}
	key := feedbackKey{
		sourcePaperID: sourcePaperID,
		paperKey:      normalizePaperKey(id),
	}
	stats, ok := s.stats.Load(key)
	if !ok || stats.count == 0 {
		return 0
	}
	mean := stats.sum / float64(stats.count)
	return (mean - 0.5) * 2 * _feedbackBiasLimit
}

// normalizePaperKey canonicalizes the discovered-paper identifier so a DOI
// and a title key at least agree with themselves across events.
func normalizePaperKey(id string) string {
	if strings.HasPrefix(strings.ToLower(id), "10.") {
		return strings.ToLower(strings.TrimSpace(id))
	}
	return normalizeTitle(id)
}
