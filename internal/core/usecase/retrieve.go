package usecase

import (
	"context"
	"time"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
)

// Degradation reasons carried in RetrievalOutcome.Degraded.
const (
	degradeSectionLookup  = "section_lookup_failed"
	degradeLexicalPath    = "lexical_unavailable"
	degradeSemanticPath   = "semantic_unavailable"
	degradeChunkHydration = "chunk_store_unavailable"
	degradeRerankFallback = "rerank_fallback"
)

// Retriever is the seam between the orchestrators and the retrieval
// pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) domain.RetrievalOutcome
}

// RetrievalConfig bounds the hybrid path. Values are read once at startup.
type RetrievalConfig struct {
	SourceTopK    int
	RerankTopR    int
	SourceTimeout time.Duration
	SnippetWidth  int
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	if c.SourceTopK <= 0 {
		c.SourceTopK = 20
	}
	if c.RerankTopR <= 0 {
		c.RerankTopR = 8
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 3 * time.Second
	}
	if c.SnippetWidth <= 0 {
		c.SnippetWidth = 200
	}
	return c
}

// RetrievalPipeline drives one query through Section -> Hybrid -> Rerank.
// Every provider failure degrades locally: the outcome may shrink but the
// pipeline itself never fails a request.
type RetrievalPipeline struct {
	sections *SectionResolver
	lexical  *LexicalSearchService
	semantic *SemanticSearchService
	fusion   *FusionEngine
	reranker *RerankerService
	chunks   ports.ChunkStore
	cfg      RetrievalConfig
}

func NewRetrievalPipeline(
	sections *SectionResolver,
	lexical *LexicalSearchService,
	semantic *SemanticSearchService,
	fusion *FusionEngine,
	reranker *RerankerService,
	chunks ports.ChunkStore,
	cfg RetrievalConfig,
) *RetrievalPipeline {
	return &RetrievalPipeline{
		sections: sections,
		lexical:  lexical,
		semantic: semantic,
		fusion:   fusion,
		reranker: reranker,
		chunks:   chunks,
		cfg:      cfg.normalize(),
	}
}

// Retrieve resolves query into ranked, attributed chunks. A limit of 0 uses
// the configured sizes; a positive limit bounds the returned results (the
// search surface passes its per-request limit, chat passes 0).
//
// A detected section identifier short-circuits the hybrid path entirely,
// including the case where it resolves to nothing.
func (p *RetrievalPipeline) Retrieve(ctx context.Context, query string, limit int) domain.RetrievalOutcome {
	var degraded []string

	matched, token, err := p.sections.Resolve(ctx, query)
	switch {
	case err != nil:
		// The store may recover by the time the indexes answer, so the
		// hybrid path still runs.
		degraded = append(degraded, degradeSectionLookup)
	case token != "":
		outcome := domain.RetrievalOutcome{
			Mode:         domain.RetrievalModeSection,
			SectionToken: token,
		}
		if len(matched) == 0 {
			outcome.SectionNotFound = true
			return outcome
		}
		outcome.Results = p.sectionResults(matched, query, limit)
		return outcome
	}

	lexical, semantic, pathReasons := p.fanOut(ctx, query, limit)
	degraded = append(degraded, pathReasons...)

	fused := p.fusion.Fuse(lexical, semantic, limit)
	hydrated, err := p.hydrate(ctx, query, fused)
	if err != nil {
		// Scores without text cannot ground an answer.
		degraded = append(degraded, degradeChunkHydration)
		return domain.RetrievalOutcome{Mode: domain.RetrievalModeHybrid, Degraded: degraded}
	}

	topR := p.cfg.RerankTopR
	if limit > 0 {
		topR = limit
	}
	results, fellBack := p.reranker.Rerank(ctx, query, hydrated, topR)
	if fellBack {
		degraded = append(degraded, degradeRerankFallback)
	}

	return domain.RetrievalOutcome{
		Mode:     domain.RetrievalModeHybrid,
		Results:  results,
		Degraded: degraded,
	}
}

// fanOut issues the lexical and semantic searches concurrently, each under
// its own timeout. One path failing or timing out leaves the other path's
// candidates intact.
func (p *RetrievalPipeline) fanOut(ctx context.Context, query string, limit int) (lexical, semantic []domain.SearchCandidate, degraded []string) {
	topK := p.cfg.SourceTopK
	if limit > topK {
		topK = limit
	}

	type pathResult struct {
		candidates []domain.SearchCandidate
		err        error
	}

	lexCh := make(chan pathResult, 1)
	semCh := make(chan pathResult, 1)

	go func() {
		pathCtx, cancel := context.WithTimeout(ctx, p.cfg.SourceTimeout)
		defer cancel()
		candidates, err := p.lexical.Search(pathCtx, query, topK)
		lexCh <- pathResult{candidates: candidates, err: err}
	}()
	go func() {
		pathCtx, cancel := context.WithTimeout(ctx, p.cfg.SourceTimeout)
		defer cancel()
		candidates, err := p.semantic.Search(pathCtx, query, topK)
		semCh <- pathResult{candidates: candidates, err: err}
	}()

	lex := <-lexCh
	sem := <-semCh

	if lex.err != nil {
		degraded = append(degraded, degradeLexicalPath)
		lex.candidates = nil
	}
	if sem.err != nil {
		degraded = append(degraded, degradeSemanticPath)
		sem.candidates = nil
	}
	return lex.candidates, sem.candidates, degraded
}

// hydrate fills the fused results with the chunk fields needed for display
// and grounding. Entries whose chunk vanished since indexing are dropped.
func (p *RetrievalPipeline) hydrate(ctx context.Context, query string, fused []domain.FusedResult) ([]domain.FusedResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(fused))
	for _, fr := range fused {
		ids = append(ids, fr.ChunkID)
	}
	chunks, err := p.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	terms := p.lexical.ExtractTerms(query)
	out := make([]domain.FusedResult, 0, len(fused))
	for _, fr := range fused {
		chunk, ok := byID[fr.ChunkID]
		if !ok {
			continue
		}
		fr.DocID = chunk.DocID
		fr.Method = chunk.Method
		fr.SectionID = chunk.SectionID
		fr.PageFrom = chunk.PageFrom
		fr.PageTo = chunk.PageTo
		fr.Text = chunk.Text
		fr.Snippet = buildSnippet(chunk.Text, terms, p.cfg.SnippetWidth)
		out = append(out, fr)
	}
	return out, nil
}

// sectionResults converts exact section matches into ranked results. An
// exact identifier hit is maximal-confidence, so every chunk scores 1.
func (p *RetrievalPipeline) sectionResults(matched []domain.Chunk, query string, limit int) []domain.RerankedResult {
	size := p.cfg.RerankTopR
	if limit > 0 {
		size = limit
	}
	if len(matched) < size {
		size = len(matched)
	}

	terms := p.lexical.ExtractTerms(query)
	out := make([]domain.RerankedResult, 0, size)
	for _, chunk := range matched[:size] {
		fr := domain.FusedResult{
			ChunkID:       chunk.ID,
			FusedScore:    1,
			Sources:       []domain.CandidateSource{domain.SourceSection},
			SemanticScore: 0,
			LexicalScore:  0,
			DocID:         chunk.DocID,
			Method:        chunk.Method,
			SectionID:     chunk.SectionID,
			PageFrom:      chunk.PageFrom,
			PageTo:        chunk.PageTo,
			Snippet:       buildSnippet(chunk.Text, terms, p.cfg.SnippetWidth),
			Text:          chunk.Text,
		}
		out = append(out, domain.RerankedResult{FusedResult: fr, RerankScore: 1})
	}
	return out
}
