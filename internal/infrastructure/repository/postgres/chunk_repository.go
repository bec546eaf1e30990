package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

// ChunkRepository reads chunks written by the ingestion pipeline. Retrieval
// never mutates this table.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const chunkColumns = `id, doc_id, COALESCE(method, ''), COALESCE(section_id, ''), COALESCE(section_id_alias, ''), page_from, page_to, text, COALESCE(hash, '')`

func (r *ChunkRepository) GetBySectionID(ctx context.Context, sectionID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE section_id = $1
ORDER BY id
`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("select chunks by section: %w", err)
	}
	return scanChunks(rows)
}

func (r *ChunkRepository) GetByAliasID(ctx context.Context, aliasID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE section_id_alias = $1
ORDER BY id
`, aliasID)
	if err != nil {
		return nil, fmt.Errorf("select chunks by alias: %w", err)
	}
	return scanChunks(rows)
}

func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
SELECT `+chunkColumns+`
FROM chunks
WHERE id IN (%s)
ORDER BY id
`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select chunks by ids: %w", err)
	}
	return scanChunks(rows)
}

// ListAll streams every chunk, for seeding the in-process indexes at boot.
func (r *ChunkRepository) ListAll(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("select all chunks: %w", err)
	}
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	defer rows.Close()

	out := make([]domain.Chunk, 0, 8)
	for rows.Next() {
		var chunk domain.Chunk
		var pageFrom, pageTo sql.NullInt64
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.Method,
			&chunk.SectionID,
			&chunk.SectionIDAlias,
			&pageFrom,
			&pageTo,
			&chunk.Text,
			&chunk.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.PageFrom = intPointer(pageFrom)
		chunk.PageTo = intPointer(pageTo)
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
