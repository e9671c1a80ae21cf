package internal

import (
	"slices"
	"strings"
	"time"
	"unicode"
)

// Dedup thresholds. Two candidates are the same paper when their DOIs match,
// or when their titles are near-identical and either the author sets overlap
// or the titles are practically equal and the years are adjacent.
const (
	_titleSimilarThreshold   = 0.85
	_titleIdenticalThreshold = 0.95
	_authorOverlapThreshold  = 0.7
)

// processor holds the pure synthesis pipeline: dedup, unified scoring,
// filtering, and ordering. It mutates no shared state; the only inputs are
// its arguments, the clock, and reads of the feedback store.
type processor struct {
	feedback *feedbackStore
	now      func() time.Time
}

// synthesis is the output of one processor run.
type synthesis struct {
	papers     []DiscoveredPaper
	totalRaw   int
	afterDedup int
	dropped    int // Candidates rejected for an empty title.
}

// synthesize collects candidates from the per-source results, deduplicates
// them, assigns unified scores, filters, and orders them. It never fails:
// missing fields degrade their factor to zero.
func (p *processor) synthesize(paper SourcePaper, cfg DiscoveryConfiguration, results []SourceDiscoveryResult) synthesis {
	var out synthesis

	candidates := []DiscoveredPaper{}
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, c := range r.Papers {
			out.totalRaw++
			if strings.TrimSpace(c.Title) == "" {
				// Clients shouldn't emit these; drop silently if one arrives.
				out.dropped++
				continue
			}
			candidates = append(candidates, c)
		}
	}

	candidates = dedupe(candidates)
	out.afterDedup = len(candidates)

	kept := candidates[:0]
	for i := range candidates {
		c := &candidates[i]
		c.DataCompleteness = dataCompleteness(*c)
		c.RelevanceScore = p.score(paper, *c)

		if c.RelevanceScore < cfg.MinRelevanceThreshold {
			continue
		}
		if cfg.OpenAccessOnly && !c.OpenAccess {
			continue
		}
		if cfg.excludesVenue(c.Journal) {
			continue
		}
		if !cfg.inDateRange(c.PublicationDate) {
			continue
		}
		kept = append(kept, *c)
	}

	sortByRelevance(kept)
	out.papers = kept
	return out
}

// sortByRelevance imposes the total, stable output order: unified score
// descending, then citations descending, then year descending, then DOI
// ascending.
func sortByRelevance(papers []DiscoveredPaper) {
	slices.SortStableFunc(papers, func(a, b DiscoveredPaper) int {
		if a.RelevanceScore != b.RelevanceScore {
			if a.RelevanceScore > b.RelevanceScore {
				return -1
			}
			return 1
		}
		if ac, bc := a.citations(), b.citations(); ac != bc {
			if ac > bc {
				return -1
			}
			return 1
		}
		if ay, by := a.publicationYear(), b.publicationYear(); ay != by {
			if ay > by {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.DOI), strings.ToLower(b.DOI))
	})
}

// score combines per-source relevance, citation influence, recency, author
// overlap, and an open-access bonus into a unified score in [0,1]. Feedback,
// when present, nudges the sum by at most ±0.05.
func (p *processor) score(paper SourcePaper, c DiscoveredPaper) float64 {
	score := min(0.4, 0.4*c.ProviderRelevance)

	score += min(0.25, float64(c.citations())/1000)

	if t, err := time.Parse("2006-01-02", c.PublicationDate); err == nil {
		yearsOld := p.now().Sub(t).Hours() / (24 * 365.25)
		score += max(0, (10-yearsOld)/10) * 0.15
	}

	if len(paper.Authors) > 0 {
		shared := 0
		theirs := surnames(c.Authors)
		for s := range surnames(paper.Authors) {
			if theirs.has(s) {
				shared++
			}
		}
		score += float64(shared) / float64(len(paper.Authors)) * 0.1
	}

	if c.OpenAccess {
		score += 0.05
	}

	if p.feedback != nil {
		score += p.feedback.bias(paper.ID, c)
	}

	return max(0, min(1.0, score))
}

// dedupe groups candidates into equivalence classes and keeps the best
// representative of each, preserving first-seen order of classes.
func dedupe(candidates []DiscoveredPaper) []DiscoveredPaper {
	reps := []DiscoveredPaper{}
	for _, c := range candidates {
		matched := false
		for i := range reps {
			if !equivalent(reps[i], c) {
				continue
			}
			reps[i] = bestRepresentative(reps[i], c)
			matched = true
			break
		}
		if !matched {
			reps = append(reps, c)
		}
	}
	return reps
}

// equivalent implements the dedup predicate.
func equivalent(a, b DiscoveredPaper) bool {
	if a.DOI != "" && b.DOI != "" && strings.EqualFold(a.DOI, b.DOI) {
		return true
	}

	sim := titleSimilarity(a.Title, b.Title)
	if sim < _titleSimilarThreshold {
		return false
	}
	if authorOverlap(a.Authors, b.Authors) >= _authorOverlapThreshold {
		return true
	}
	ay, by := a.publicationYear(), b.publicationYear()
	return sim >= _titleIdenticalThreshold && absInt(ay-by) <= 1
}

// bestRepresentative picks the better of two equivalent candidates:
// has-DOI beats no-DOI, then higher citations, then higher completeness,
// with source priority (registry > corpus > trends) breaking every tie.
func bestRepresentative(a, b DiscoveredPaper) DiscoveredPaper {
	if (a.DOI != "") != (b.DOI != "") {
		if a.DOI != "" {
			return a
		}
		return b
	}
	if ac, bc := a.citations(), b.citations(); ac != bc {
		if ac > bc {
			return a
		}
		return b
	}
	if acp, bcp := dataCompleteness(a), dataCompleteness(b); acp != bcp {
		if acp > bcp {
			return a
		}
		return b
	}
	if _sourcePriority[a.DiscoverySource] <= _sourcePriority[b.DiscoverySource] {
		return a
	}
	return b
}

// dataCompleteness is the fraction of key bibliographic fields present.
func dataCompleteness(p DiscoveredPaper) float64 {
	present := 0
	if p.DOI != "" {
		present++
	}
	if len(p.Authors) > 0 {
		present++
	}
	if p.Journal != "" {
		present++
	}
	if p.PublicationDate != "" {
		present++
	}
	if p.CitationCount != nil {
		present++
	}
	return float64(present) / 5
}

// titleSimilarity compares normalized titles. Near-identical strings use a
// normalized edit distance; everything else falls back to a Jaccard index
// over token bigrams.
func titleSimilarity(a, b string) float64 {
	a, b = normalizeTitle(a), normalizeTitle(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	if d := editDistance(a, b); d <= 3 {
		return 1 - float64(d)/float64(max(len(a), len(b)))
	}

	ab, bb := bigrams(a), bigrams(b)
	if len(ab) == 0 || len(bb) == 0 {
		return 0
	}
	intersection := 0
	for g := range ab {
		if bb.has(g) {
			intersection++
		}
	}
	union := len(ab) + len(bb) - intersection
	return float64(intersection) / float64(union)
}

// normalizeTitle lowercases, strips non-alphanumerics, and collapses
// whitespace.
func normalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	space := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
		default:
			space = true
		}
	}
	return sb.String()
}

// bigrams returns the set of token bigrams of a normalized title.
func bigrams(normalized string) set[string] {
	tokens := strings.Fields(normalized)
	grams := newSet[string]()
	if len(tokens) == 1 {
		grams.add(tokens[0])
		return grams
	}
	for i := 0; i+1 < len(tokens); i++ {
		grams.add(tokens[i] + " " + tokens[i+1])
	}
	return grams
}

// editDistance is the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// authorOverlap is |intersection of normalized surnames| / max(|A|, |B|).
func authorOverlap(a, b []string) float64 {
	as, bs := surnames(a), surnames(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	shared := 0
	for s := range as {
		if bs.has(s) {
			shared++
		}
	}
	return float64(shared) / float64(max(len(as), len(bs)))
}

// surnames extracts normalized author surnames, assuming the last token of a
// "First Last" rendering is the surname.
func surnames(authors []string) set[string] {
	s := newSet[string]()
	for _, a := range authors {
		fields := strings.Fields(normalizeTitle(a))
		if len(fields) == 0 {
			continue
		}
		s.add(fields[len(fields)-1])
	}
	return s
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
