package keyword

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const syncBatchSize = 1000

// document is what gets stored per id: the raw id and its words joined by spaces.
type document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BleveIndex implements IDIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path or ":memory:"
// creates an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	nameFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase, no stemming) so "cats" does not match "cat".
	nameFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)
	docMapping.AddFieldMappingsAt("id", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping

	if path == "" || path == ":memory:" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newDocument(id string) document {
	return document{ID: id, Name: strings.Join(Terms(id), " ")}
}

// Index adds id to the index. Indexing an id twice is a no-op.
func (b *BleveIndex) Index(ctx context.Context, id string) error {
	return b.index.Index(id, newDocument(id))
}

// Sync indexes every id yielded by ids in batches and returns how many were indexed.
// It stops at the first error from ids or from Bleve.
func (b *BleveIndex) Sync(ctx context.Context, ids iter.Seq2[string, error]) (int, error) {
	batch := b.index.NewBatch()
	n := 0
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
		batch.Reset()
		return nil
	}
	for id, err := range ids {
		if err != nil {
			return n, err
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := batch.Index(id, newDocument(id)); err != nil {
			return n, fmt.Errorf("Bleve batch index %q: %w", id, err)
		}
		n++
		if batch.Size() >= syncBatchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	return n, flush()
}

// Search returns up to limit ids matching every word of query, best first. With
// opts.Fuzziness > 0 each word may be misspelled by up to that many edits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error) {
	terms := Terms(query)
	if len(terms) == 0 || limit <= 0 {
		return []*Hit{}, nil
	}
	fuzziness := 0
	if opts != nil {
		fuzziness = min(max(opts.Fuzziness, 0), 2)
	}

	clauses := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		if fuzziness > 0 {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField("name")
			clauses = append(clauses, fq)
			continue
		}
		tq := bleve.NewTermQuery(term)
		tq.SetField("name")
		clauses = append(clauses, tq)
	}
	// All words must match (AND semantics).
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(clauses...))
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Hit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Hit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes an id from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of ids in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
