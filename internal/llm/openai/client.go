package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
)

// Name implements llm.Provider.
func (c *Client) Name() string { return constants.ProviderOpenAI }

// Extract implements llm.Provider using text-only chat/completions with
// JSON-object response format.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (llm.Response, error) {
	rid := uuid.New().String()
	start := time.Now()

	schema := llm.BuildInvoiceJSONSchema()
	c.log.Info("openai.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"document_id", req.DocumentID,
		"text_len", len(req.Text),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": llm.BuildUserPrompt(req, schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("openai.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("no choices in openai response"))
	}

	payload := llm.ExtractJSONPayload(cc.Choices[0].Message.Content)
	var fields entity.InvoiceFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		c.log.Error("openai.extract.unmarshal_failed", "req_id", rid, "error", err)
		return llm.Response{}, llm.Transient(c.Name(), fmt.Errorf("unmarshal fields: %w", err))
	}

	confidence := fields.ModelConfidence
	if confidence <= 0 {
		confidence = 1.0
	}

	c.log.Info("openai.extract.ok",
		"req_id", rid,
		"order_id", fields.OrderID,
		"merchant", fields.MerchantName,
		"total", fields.Total,
		"confidence", confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{
		Fields:     fields,
		RawJSON:    payload,
		Model:      c.cfg.Model,
		Confidence: confidence,
		Usage: entity.Usage{
			InputTokens:  cc.Usage.PromptTokens,
			OutputTokens: cc.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, llm.Permanent(c.Name(), fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, llm.Permanent(c.Name(), err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, llm.Transient(c.Name(), fmt.Errorf("openai http error: %w", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Transient(c.Name(), fmt.Errorf("read openai response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, llm.StatusError(c.Name(), resp.StatusCode, fmt.Errorf("openai status %d: %s", resp.StatusCode, payload))
	}
	return payload, nil
}
