package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Ping checks that the service answers at all.
	Ping(ctx context.Context) error
	Dimensions() int
}

// OllamaEmbedder talks to an Ollama server's embeddings endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
}

type OllamaOptions struct {
	URL           string
	Model         string
	Dimensions    int
	Timeout       time.Duration
	RatePerMinute int
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedder(opts OllamaOptions) *OllamaEmbedder {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(opts.URL, "/"),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		client:     &http.Client{Timeout: opts.Timeout},
		limiter:    newLimiter(opts.RatePerMinute),
	}
}

func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Service: "embedding", Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out embedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, ErrMissingEmbedding
	}
	if e.dimensions > 0 && len(out.Embedding) != e.dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d values, store expects %d",
			ErrDimensionMismatch, e.model, len(out.Embedding), e.dimensions)
	}
	return out.Embedding, nil
}

func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, &StatusError{Service: "embedding", Code: resp.StatusCode})
	}
	return nil
}
