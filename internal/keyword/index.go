// Package keyword finds stored record ids by the words in them (path segments, file names).
package keyword

import (
	"context"
	"iter"
	"strings"
	"unicode"
)

// IDIndex is a term index over record ids. It complements the vector store, which can
// only look ids up exactly.
type IDIndex interface {
	Index(ctx context.Context, id string) error
	Sync(ctx context.Context, ids iter.Seq2[string, error]) (int, error)
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// SearchOptions optional parameters for id search. Nil means exact term matching.
type SearchOptions struct {
	// Fuzziness is the maximum Levenshtein edit distance per term (0 disables, max 2).
	Fuzziness int
}

// Hit is a single id search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Terms splits an id into lowercase searchable words. Every rune that is not a letter
// or digit separates words, so "photos/cat_01.jpg" yields photos, cat, 01, jpg.
func Terms(id string) []string {
	return strings.FieldsFunc(strings.ToLower(id), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
