// Package gemini implements llm.Provider against the generateContent API.
package gemini

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

// Config for the Gemini client.
type Config struct {
	APIKey      string
	BaseURL     string // default https://generativelanguage.googleapis.com/v1beta
	Model       string // e.g. "gemini-1.5-flash"
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
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
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
func (c *Client) Name() string { return constants.ProviderGemini }

// Extract implements llm.Provider.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (llm.Response, error) {
	start := time.Now()
	schema := llm.BuildInvoiceJSONSchema()

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{
				{"text": llm.SystemPrompt + "\n\n" + llm.BuildUserPrompt(req, schema)},
			}},
		},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"maxOutputTokens":  c.cfg.MaxTokens,
			"responseMimeType": "application/json",
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, llm.Permanent(c.Name(), fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return llm.Response{}, llm.Permanent(c.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Response{}, ctx.Err()
		}
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("gemini http error: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("read gemini response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Response{}, llm.StatusError(c.Name(), resp.StatusCode, fmt.Errorf("gemini status %d: %s", resp.StatusCode, raw))
	}

	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("decode gemini response: %w", err))
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("empty candidates in gemini response"))
	}

	payload := llm.ExtractJSONPayload(gr.Candidates[0].Content.Parts[0].Text)
	var fields entity.InvoiceFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("unmarshal fields: %w", err))
	}

	confidence := fields.ModelConfidence
	if confidence <= 0 {
		confidence = 1.0
	}

	c.log.Info("gemini.extract.ok",
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
			InputTokens:  gr.UsageMetadata.PromptTokenCount,
			OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}
