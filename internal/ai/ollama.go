package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"askdoc/internal/config"
	"askdoc/internal/model"
)

const (
	defaultOllamaBaseURL        = "http://localhost:11434"
	defaultOllamaModel          = "llama3.2"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
)

// OllamaClient talks to a local Ollama server (/api/chat and /api/embeddings).
type OllamaClient struct {
	httpClient     *http.Client
	baseURL        string
	model          string
	embeddingModel string
}

func newOllamaClient(cfg config.LLMConfig) *OllamaClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = defaultOllamaModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOllamaEmbeddingModel
	}
	return &OllamaClient{
		httpClient:     &http.Client{Timeout: 120 * time.Second},
		baseURL:        baseURL,
		model:          chatModel,
		embeddingModel: embeddingModel,
	}
}

func (c *OllamaClient) Complete(ctx context.Context, messages []model.Turn) (string, error) {
	reqBody := map[string]interface{}{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
	}

	raw, err := c.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse ollama chat json failed: %w", err)
	}
	if parsed.Message.Content == "" {
		return "", fmt.Errorf("empty ollama chat response")
	}
	return parsed.Message.Content, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	reqBody := map[string]interface{}{
		"model":  c.embeddingModel,
		"prompt": text,
	}
	raw, err := c.post(ctx, "/api/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse ollama embedding json failed: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return parsed.Embedding, nil
}

// EmbedBatch embeds texts one by one; the Ollama embeddings endpoint takes a
// single prompt per call.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("response status %d from %s: %s", resp.StatusCode, path, string(raw))
	}
	return raw, nil
}
