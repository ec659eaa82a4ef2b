package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"recall/config"
	"recall/internal/domain"
	"recall/internal/port"
)

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint
// (OpenAI, Groq, Ollama, custom). Each batch request carries its own
// timeout and honors caller cancellation; transient failures are
// retried with backoff before being surfaced as a ProviderError.
type OpenAIEmbedder struct {
	provider  string
	apiKey    string
	model     string
	baseURL   string
	dimension int
	batchSize int
	timeout   time.Duration
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewFromConfig builds the embedder selected by the configuration.
// Provider identity is resolved here, at the boundary; the rest of the
// core only sees the Embedder port.
func NewFromConfig(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	case "openai":
		return newOpenAICompatible(cfg, "https://api.openai.com/v1", true)
	case "groq":
		return newOpenAICompatible(cfg, "https://api.groq.com/openai/v1", true)
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = "http://localhost:11434/v1"
		}
		e, err := newOpenAICompatible(cfg, base, false)
		if err != nil {
			return nil, err
		}
		e.apiKey = "ollama"
		return e, nil
	case "custom":
		if cfg.BaseURL == "" {
			return nil, &domain.InvalidConfigError{Field: "embedding.base_url", Reason: "required for custom provider"}
		}
		return newOpenAICompatible(cfg, cfg.BaseURL, true)
	default:
		return nil, &domain.InvalidConfigError{Field: "embedding.provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}
}

func newOpenAICompatible(cfg config.EmbeddingConfig, defaultBase string, needKey bool) (*OpenAIEmbedder, error) {
	var apiKey string
	if needKey {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, &domain.InvalidConfigError{Field: "embedding.api_key_env", Reason: fmt.Sprintf("API key not found in environment variable %s", cfg.APIKeyEnv)}
		}
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBase
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	return &OpenAIEmbedder{
		provider:  cfg.Provider,
		apiKey:    apiKey,
		model:     cfg.Model,
		baseURL:   base,
		dimension: cfg.Dimension,
		batchSize: batch,
		timeout:   timeout,
		client:    &http.Client{},
	}, nil
}

// Embed generates one vector per input text, batching requests.
// Cancelling ctx stops before the next batch; in-flight results are
// discarded, never partially returned.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	err := retry.Do(
		func() error {
			var err error
			vectors, err = e.doRequest(ctx, texts)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, &domain.ProviderError{Provider: e.provider, Err: err}
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, retry.Unrecoverable(fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview, err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < len(vectors) {
			vectors[data.Index] = data.Embedding
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("provider returned no embedding for input %d", i)
		}
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
