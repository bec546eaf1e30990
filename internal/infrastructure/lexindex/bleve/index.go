// Package bleve implements the lexical index port with a bleve full-text
// index over chunk text. The index lives on disk next to the service, or in
// memory when no path is configured; bootstrap seeds it from the chunk store
// when it is empty.
package bleve

import (
	"context"
	"fmt"
	"strings"

	blevelib "github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

type Index struct {
	index blevelib.Index
}

// Open opens the index at path, creating it when absent. An empty path
// builds a memory-only index.
func Open(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		idx, err := blevelib.NewMemOnly(blevelib.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("open memory lexical index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := blevelib.Open(path)
	if err == blevelib.ErrorIndexPathDoesNotExist {
		idx, err = blevelib.New(path, blevelib.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index %s: %w", path, err)
	}
	return &Index{index: idx}, nil
}

// Query matches any of the given terms against chunk text and returns raw
// TF-IDF scores. Terms arrive already lowercased and synonym-expanded.
func (i *Index) Query(ctx context.Context, terms []string, topK int) ([]domain.IndexHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	disjuncts := make([]query.Query, 0, len(terms))
	for _, term := range terms {
		match := blevelib.NewMatchQuery(term)
		match.SetField("text")
		disjuncts = append(disjuncts, match)
	}

	request := blevelib.NewSearchRequestOptions(blevelib.NewDisjunctionQuery(disjuncts...), topK, 0, false)
	result, err := i.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]domain.IndexHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, domain.IndexHit{ChunkID: hit.ID, RawScore: hit.Score})
	}
	return hits, nil
}

// IndexChunk adds or replaces one chunk.
func (i *Index) IndexChunk(chunk domain.Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("index chunk: empty id")
	}
	return i.index.Index(chunk.ID, chunkFields(chunk))
}

// IndexChunks bulk-loads chunks through a single batch.
func (i *Index) IndexChunks(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := i.index.NewBatch()
	for _, chunk := range chunks {
		if chunk.ID == "" {
			continue
		}
		if err := batch.Index(chunk.ID, chunkFields(chunk)); err != nil {
			return fmt.Errorf("batch chunk %s: %w", chunk.ID, err)
		}
	}
	return i.index.Batch(batch)
}

func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

func (i *Index) Close() error {
	return i.index.Close()
}

func chunkFields(chunk domain.Chunk) map[string]any {
	return map[string]any{
		"text":       chunk.Text,
		"doc_id":     chunk.DocID,
		"section_id": chunk.SectionID,
	}
}
