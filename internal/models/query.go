package models

import "fmt"

// SearchQuery is a similarity request. Exactly one of ID, Vector and Path names the
// reference: a stored id, a raw query vector, or an item to embed.
type SearchQuery struct {
	ID            string    `json:"id,omitempty"`
	Vector        []float32 `json:"vector,omitempty"`
	Path          string    `json:"path,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	MinSimilarity *float32  `json:"min_similarity,omitempty"`
}

// Validate checks that exactly one reference is set and applies limit defaults:
// 0 means defaultLimit, values above maxLimit are capped, negative values fail with ErrInvalidK.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	set := 0
	for _, ok := range []bool{q.ID != "", len(q.Vector) > 0, q.Path != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one of id, vector or path is required", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, q.Limit)
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.MinSimilarity != nil && (*q.MinSimilarity < -1 || *q.MinSimilarity > 1) {
		return fmt.Errorf("%w: min_similarity must be within [-1, 1], got %v", ErrInvalidQuery, *q.MinSimilarity)
	}
	return nil
}

// SearchResponse is the result of a SearchQuery. Total counts every match before the
// limit was applied when a similarity threshold is set; otherwise it equals len(Matches).
type SearchResponse struct {
	Matches   []Match `json:"matches"`
	Total     int     `json:"total"`
	QueryTime int64   `json:"query_time_ms"`
}
