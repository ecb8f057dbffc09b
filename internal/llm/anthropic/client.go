// Package anthropic implements llm.Provider against the Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
)

const apiVersion = "2023-06-01"

// Config for the Anthropic client.
type Config struct {
	APIKey      string
	BaseURL     string // default https://api.anthropic.com
	Model       string // e.g. "claude-3-haiku-20240307"
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-haiku-20240307"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

// FromProviderConfig adapts the shared configuration shape.
func FromProviderConfig(pc common.ProviderConfig, timeout time.Duration, logger *slog.Logger) *Client {
	return NewClient(Config{
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
		Timeout:     timeout,
	}, logger)
}

// Name implements llm.Provider.
func (c *Client) Name() string { return constants.ProviderAnthropic }

// Extract implements llm.Provider.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (llm.Response, error) {
	start := time.Now()
	schema := llm.BuildInvoiceJSONSchema()

	body := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"system":      llm.SystemPrompt,
		"messages": []map[string]any{
			{"role": "user", "content": llm.BuildUserPrompt(req, schema)},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, llm.Permanent(c.Name(), fmt.Errorf("marshal request: %w", err))
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return llm.Response{}, llm.Permanent(c.Name(), err)
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Response{}, ctx.Err()
		}
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("anthropic http error: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("read anthropic response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Response{}, llm.StatusError(c.Name(), resp.StatusCode, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, raw))
	}

	var mr struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &mr); err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("decode anthropic response: %w", err))
	}
	if len(mr.Content) == 0 {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("empty content in anthropic response"))
	}

	payload := llm.ExtractJSONPayload(mr.Content[0].Text)
	var fields entity.InvoiceFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("unmarshal fields: %w", err))
	}

	confidence := fields.ModelConfidence
	if confidence <= 0 {
		confidence = 1.0
	}

	c.log.Info("anthropic.extract.ok",
		"model", c.cfg.Model,
		"document_id", req.DocumentID,
		"order_id", fields.OrderID,
		"confidence", confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{
		Fields:     fields,
		RawJSON:    payload,
		Model:      c.cfg.Model,
		Confidence: confidence,
		Usage: entity.Usage{
			InputTokens:  mr.Usage.InputTokens,
			OutputTokens: mr.Usage.OutputTokens,
		},
	}, nil
}
