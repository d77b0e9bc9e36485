package vector

import (
	"container/heap"
	"iter"
	"sort"

	"github.com/hyperjump/ruiji/internal/models"
)

// Before reports whether a ranks ahead of b: higher similarity first, then ascending id.
func Before(a, b models.Match) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ID < b.ID
}

// SortMatches orders matches by Before.
func SortMatches(matches []models.Match) {
	sort.Slice(matches, func(i, j int) bool { return Before(matches[i], matches[j]) })
}

// worstFirst is a heap whose root is the lowest-ranked kept match.
type worstFirst []models.Match

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return Before(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(models.Match)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// collector keeps the k best matches seen so far.
type collector struct {
	k int
	h worstFirst
}

func newCollector(k int) *collector {
	return &collector{k: k, h: make(worstFirst, 0, k)}
}

func (c *collector) offer(m models.Match) {
	if c.k <= 0 {
		return
	}
	if len(c.h) < c.k {
		heap.Push(&c.h, m)
		return
	}
	if Before(m, c.h[0]) {
		c.h[0] = m
		heap.Fix(&c.h, 0)
	}
}

func (c *collector) result() []models.Match {
	out := make([]models.Match, len(c.h))
	copy(out, c.h)
	SortMatches(out)
	return out
}

// TopK ranks candidates by cosine similarity to reference and returns at most k matches.
// The candidate whose id equals excludeID is skipped (empty excludeID excludes nothing).
// Candidates that cannot be compared (wrong length, zero norm) are skipped. A degenerate
// reference, no candidates, or k <= 0 yield an empty result.
func TopK(reference []float32, candidates iter.Seq[models.Record], k int, excludeID string) []models.Match {
	c := newCollector(k)
	if k <= 0 {
		return c.result()
	}
	refNorm := L2Norm(reference)
	if refNorm == 0 {
		return c.result()
	}
	for rec := range candidates {
		if excludeID != "" && rec.ID == excludeID {
			continue
		}
		if len(rec.Vector) != len(reference) {
			continue
		}
		candNorm := L2Norm(rec.Vector)
		if candNorm == 0 {
			continue
		}
		c.offer(models.Match{ID: rec.ID, Similarity: clamp(InnerProduct(reference, rec.Vector) / (refNorm * candNorm))})
	}
	return c.result()
}

// MergeTopK merges partial top-K lists into one top-K list ordered by Before.
// The result does not depend on how candidates were partitioned.
func MergeTopK(k int, lists ...[]models.Match) []models.Match {
	c := newCollector(k)
	for _, l := range lists {
		for _, m := range l {
			c.offer(m)
		}
	}
	return c.result()
}

// Threshold returns every candidate whose similarity to reference is at least minSimilarity, ordered by Before.
func Threshold(reference []float32, candidates iter.Seq[models.Record], minSimilarity float32, excludeID string) []models.Match {
	refNorm := L2Norm(reference)
	if refNorm == 0 {
		return []models.Match{}
	}
	out := []models.Match{}
	for rec := range candidates {
		if excludeID != "" && rec.ID == excludeID {
			continue
		}
		if len(rec.Vector) != len(reference) {
			continue
		}
		candNorm := L2Norm(rec.Vector)
		if candNorm == 0 {
			continue
		}
		s := clamp(InnerProduct(reference, rec.Vector) / (refNorm * candNorm))
		if s >= minSimilarity {
			out = append(out, models.Match{ID: rec.ID, Similarity: s})
		}
	}
	SortMatches(out)
	return out
}

// Records adapts a slice to a candidate sequence.
func Records(recs []models.Record) iter.Seq[models.Record] {
	return func(yield func(models.Record) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}
