package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkorchagin/docqa/internal/config"
	"github.com/mkorchagin/docqa/internal/core/ports"
	"github.com/mkorchagin/docqa/internal/core/usecase"
	"github.com/mkorchagin/docqa/internal/infrastructure/embedcache"
	"github.com/mkorchagin/docqa/internal/infrastructure/lexindex/bleve"
	"github.com/mkorchagin/docqa/internal/infrastructure/llm/ollama"
	"github.com/mkorchagin/docqa/internal/infrastructure/queue/nats"
	"github.com/mkorchagin/docqa/internal/infrastructure/repository/postgres"
	"github.com/mkorchagin/docqa/internal/infrastructure/resilience"
	"github.com/mkorchagin/docqa/internal/infrastructure/vector/qdrant"
	"github.com/mkorchagin/docqa/internal/lexicon"
)

// App is the wired object graph behind the API and MCP binaries. The worker
// wires its own smaller set in cmd/worker; it has no use for the retrieval
// stack.
type App struct {
	Config config.Config

	DB    *sql.DB
	Queue *nats.Queue

	SearchUC   ports.SearchService
	ChatUC     ports.ChatService
	SessionsUC ports.SessionReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (app *App, err error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	var lexIndex *bleve.Index
	defer func() {
		if err == nil {
			return
		}
		if lexIndex != nil {
			_ = lexIndex.Close()
		}
		_ = db.Close()
	}()

	if err = postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	sessions := postgres.NewSessionRepository(db)

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	lexIndex, err = bleve.Open(cfg.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}
	// Seeding is soft: a failure leaves the lexical path degraded, it does
	// not keep the service down.
	if seedErr := seedLexicalIndex(ctx, lexIndex, chunks); seedErr != nil {
		slog.Warn("lexical_index_seed_failed", "error", seedErr)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	llmClient := ollama.NewWithOptions(cfg.OllamaURL,
		cfg.OllamaChatModel, cfg.OllamaEmbedModel, cfg.OllamaRerankModel,
		ollama.Options{
			HTTPTimeout:        time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
			ResilienceExecutor: executor,
		})
	completer := ollama.NewCompleter(llmClient)
	rawEmbedder := ollama.NewEmbedder(llmClient)
	// The cache is sized for repeated user queries, so seeding below goes
	// through the raw embedder and leaves it alone.
	embedder := embedcache.Wrap(rawEmbedder,
		cfg.EmbedCacheSize, time.Duration(cfg.EmbedCacheTTLSeconds)*time.Second)
	scorer := ollama.NewScorer(llmClient)

	var vectorIndex ports.VectorIndex
	var memoryIndex *qdrant.MemoryIndex
	if cfg.QdrantURL != "" {
		vectorIndex = qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection,
			qdrant.Options{ResilienceExecutor: executor})
	} else {
		memoryIndex = qdrant.NewMemoryIndex()
		vectorIndex = memoryIndex
		slog.Info("vector_index_in_process", "reason", "no qdrant url configured")
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject,
		nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return nil, fmt.Errorf("init query event queue: %w", err)
	}

	sections := usecase.NewSectionResolver(chunks)
	lexicalSvc := usecase.NewLexicalSearchService(lexIndex, lex)
	semanticSvc := usecase.NewSemanticSearchService(embedder, vectorIndex)
	fusion := usecase.NewFusionEngine(usecase.FusionWeights{
		Semantic: cfg.SemanticWeight,
		Lexical:  cfg.LexicalWeight,
	}, cfg.FusedSize)
	reranker := usecase.NewRerankerService(scorer, cfg.RerankBatch, cfg.RerankMaxChars)
	pipeline := usecase.NewRetrievalPipeline(sections, lexicalSvc, semanticSvc,
		fusion, reranker, chunks, usecase.RetrievalConfig{
			SourceTopK:    cfg.SourceTopK,
			SourceTimeout: time.Duration(cfg.SourceTimeoutSeconds) * time.Second,
			RerankTopR:    cfg.RerankTopR,
		})

	searchUC := usecase.NewSearchUseCase(pipeline, queue)
	chatUC := usecase.NewChatOrchestrator(pipeline, completer, sessions, queue,
		usecase.ChatConfig{
			HistoryWindow:   cfg.HistoryWindow,
			MaxMessageChars: cfg.MaxMessageChars,
			Temperature:     cfg.LLMTemperature,
			MaxTokens:       cfg.LLMMaxTokens,
			LLMTimeout:      time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		})

	if memoryIndex != nil {
		// Queries degrade to the lexical path until this finishes.
		go seedMemoryVectorIndex(ctx, memoryIndex, chunks, rawEmbedder)
	}

	closeIndex := lexIndex
	return &App{
		Config: cfg,
		DB:     db,
		Queue:  queue,

		SearchUC:   searchUC,
		ChatUC:     chatUC,
		SessionsUC: chatUC,

		closeFn: func() {
			queue.Close()
			_ = closeIndex.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// seedLexicalIndex fills an empty index from the chunks table. An on-disk
// index that already has documents is left alone; the in-memory one is
// rebuilt on every boot.
func seedLexicalIndex(ctx context.Context, index *bleve.Index, chunks *postgres.ChunkRepository) error {
	count, err := index.DocCount()
	if err != nil {
		return fmt.Errorf("lexical doc count: %w", err)
	}
	if count > 0 {
		slog.Info("lexical_index_ready", "docs", count)
		return nil
	}

	all, err := chunks.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(all) == 0 {
		slog.Warn("lexical_index_empty", "reason", "no chunks in postgres")
		return nil
	}
	if err := index.IndexChunks(all); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	slog.Info("lexical_index_seeded", "docs", len(all))
	return nil
}

// seedMemoryVectorIndex embeds every chunk into the in-process index. It
// runs in the background because embedding a corpus through Ollama takes a
// while; an embedding failure abandons the rest rather than hammering a
// provider that is already refusing.
func seedMemoryVectorIndex(ctx context.Context, index *qdrant.MemoryIndex, chunks *postgres.ChunkRepository, embedder ports.EmbeddingProvider) {
	all, err := chunks.ListAll(ctx)
	if err != nil {
		slog.Warn("vector_index_seed_skipped", "error", err)
		return
	}

	for i, chunk := range all {
		if ctx.Err() != nil {
			return
		}
		vector, err := embedder.Embed(ctx, chunk.Text)
		if err != nil {
			slog.Warn("vector_index_seed_aborted",
				"indexed", i, "total", len(all), "error", err)
			return
		}
		index.Upsert(chunk.ID, vector)
	}
	slog.Info("vector_index_seeded", "vectors", index.Len())
}
