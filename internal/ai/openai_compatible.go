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
)

type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
}

// OpenAICompatibleClient talks to any endpoint implementing the OpenAI
// /chat/completions and /embeddings routes.
type OpenAICompatibleClient struct {
	httpClient *http.Client
	cfg        OpenAIConfig
}

func NewOpenAICompatibleClient(cfg OpenAIConfig) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		cfg:        cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *OpenAICompatibleClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.Model == "" {
		return "", ErrNotConfigured
	}

	reqBody := map[string]interface{}{
		"model":    c.cfg.Model,
		"messages": []chatMessage{{Role: "user", Content: prompt}},
		"stream":   false,
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", reqBody, &parsed); err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenAICompatibleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cfg.APIKey == "" || c.cfg.EmbeddingModel == "" {
		return nil, ErrNotConfigured
	}

	reqBody := map[string]interface{}{
		"model": c.cfg.EmbeddingModel,
		"input": text,
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", reqBody, &parsed); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return parsed.Data[0].Embedding, nil
}

func (c *OpenAICompatibleClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *OpenAICompatibleClient) post(ctx context.Context, path string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("response status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response json failed: %w", err)
	}
	return nil
}
