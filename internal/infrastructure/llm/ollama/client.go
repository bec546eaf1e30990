// Package ollama adapts a local Ollama server to the generation, embedding
// and relevance-scoring ports. One Client is shared by all three adapters so
// they reuse the same HTTP pool and circuit breakers.
package ollama

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	chatModel   string
	embedModel  string
	rerankModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, chatModel, embedModel, rerankModel string) *Client {
	return NewWithOptions(baseURL, chatModel, embedModel, rerankModel, Options{})
}

type Options struct {
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(baseURL, chatModel, embedModel, rerankModel string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		chatModel:   chatModel,
		embedModel:  embedModel,
		rerankModel: rerankModel,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
	}
}

// Completer generates chat completions with the configured chat model.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, messages []domain.PromptMessage, temperature float64, maxTokens int) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("complete: no messages")
	}

	type chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		payload = append(payload, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	options := map[string]any{"temperature": temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	request := map[string]any{
		"model":    c.client.chatModel,
		"messages": payload,
		"stream":   false,
		"options":  options,
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.client.postJSON(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// Embedder embeds query text with the configured embedding model.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.embedBatch(ctx, e.client.embedModel, []string{text}, "embed")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Scorer reranks candidate passages by embedding the query and the passages
// with the rerank model and scoring each pair by cosine similarity. The
// whole batch goes out as one embed call.
type Scorer struct {
	client *Client
}

func NewScorer(client *Client) *Scorer {
	return &Scorer{client: client}
}

func (s *Scorer) ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(texts)+1)
	inputs = append(inputs, query)
	inputs = append(inputs, texts...)

	vectors, err := s.client.embedBatch(ctx, s.client.rerankModel, inputs, "rerank")
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("rerank embeddings: got %d vectors for %d inputs", len(vectors), len(inputs))
	}

	queryVector := vectors[0]
	scores := make([]float64, len(texts))
	for i, vec := range vectors[1:] {
		scores[i] = cosineSimilarity(queryVector, vec)
	}
	return scores, nil
}

func (c *Client) embedBatch(ctx context.Context, model string, inputs []string, operation string) ([][]float32, error) {
	request := map[string]any{
		"model": model,
		"input": inputs,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.postJSON(ctx, "/api/embed", request, &response, operation); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
