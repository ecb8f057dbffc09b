// Package fallback drives ordered multi-provider extraction with bounded
// retries. Each provider call runs as an explicit per-attempt state machine:
// attempting -> success | retry scheduled (backoff, same provider) |
// fall back (next provider) | exhausted. Every attempt, including timeouts
// and cancellations, is recorded to the cost ledger before control moves on.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
)

// Config holds the fallback order and retry behavior.
type Config struct {
	RetryLimit  int           // retries per provider after the first try
	BackoffBase time.Duration // doubles each retry
	BackoffCap  time.Duration
	CallTimeout time.Duration // per provider call
}

// Recorder receives every provider attempt. Satisfied by *ledger.Ledger.
type Recorder interface {
	Record(attempt entity.ProviderAttempt)
}

// ExtractionError is returned when every provider in the fallback order has
// been exhausted. It carries all attempts for diagnosis.
type ExtractionError struct {
	DocumentID uuid.UUID
	Attempts   []entity.ProviderAttempt
}

func (e *ExtractionError) Error() string {
	providers := make(map[string]struct{}, len(e.Attempts))
	for _, a := range e.Attempts {
		providers[a.Provider] = struct{}{}
	}
	return fmt.Sprintf("extraction failed for document %s: %d attempts across %d providers",
		e.DocumentID, len(e.Attempts), len(providers))
}

func (e *ExtractionError) Unwrap() error { return common.ErrExtractionFailed }

// state of one provider attempt cycle.
type state int

const (
	stateAttempting state = iota
	stateSuccess
	stateRetryScheduled
	stateFallback
	stateExhausted
)

// Client tries providers in order until one succeeds. It holds no shared
// mutable state across calls and is safe for concurrent use.
type Client struct {
	providers []llm.Provider
	cfg       Config
	recorder  Recorder
	log       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error // test seam
}

// New builds a client from the configured fallback order. Identifiers with
// no available provider (e.g. missing API key) are skipped with a warning;
// at least one provider must remain.
func New(order []string, available map[string]llm.Provider, cfg Config, recorder Recorder, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var providers []llm.Provider
	for _, name := range order {
		p, ok := available[name]
		if !ok {
			logger.Warn("fallback.provider.unavailable", "provider", name)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no providers available from order %v", common.ErrInvalidInput, order)
	}
	if recorder == nil {
		return nil, fmt.Errorf("%w: attempt recorder is required", common.ErrInvalidInput)
	}
	return &Client{
		providers: providers,
		cfg:       cfg,
		recorder:  recorder,
		log:       logger,
		sleep:     sleepCtx,
	}, nil
}

// Extract walks the fallback order for one document. On success it returns
// the provider's result with cost attributed; on exhaustion it returns an
// *ExtractionError wrapping the exhaustion sentinel. Caller cancellation is
// honored between and during attempts, and the interrupted attempt is still
// recorded.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (entity.ExtractionResult, error) {
	var attempts []entity.ProviderAttempt

	for _, provider := range c.providers {
		try := 0
		st := stateAttempting
		for st == stateAttempting || st == stateRetryScheduled {
			if st == stateRetryScheduled {
				if err := c.sleep(ctx, c.backoff(try)); err != nil {
					return entity.ExtractionResult{}, err
				}
			}
			try++

			attempt, result, err := c.attempt(ctx, provider, req, try)
			attempts = append(attempts, attempt)
			c.recorder.Record(attempt)

			switch attempt.Outcome {
			case constants.OutcomeSuccess:
				return result, nil
			case constants.OutcomeCancelled:
				return entity.ExtractionResult{}, err
			case constants.OutcomePermanentFailure:
				st = stateFallback
			default: // TRANSIENT_FAILURE, TIMEOUT
				if try > c.cfg.RetryLimit {
					c.log.Warn("fallback.provider.exhausted",
						"provider", provider.Name(),
						"document_id", req.DocumentID,
						"tries", try,
					)
					st = stateFallback
				} else {
					st = stateRetryScheduled
				}
			}
		}
	}

	c.log.Error("fallback.exhausted",
		"document_id", req.DocumentID,
		"attempts", len(attempts),
	)
	return entity.ExtractionResult{}, &ExtractionError{DocumentID: req.DocumentID, Attempts: attempts}
}

// attempt runs one bounded provider call and materializes its record.
func (c *Client) attempt(ctx context.Context, provider llm.Provider, req llm.ExtractRequest, try int) (entity.ProviderAttempt, entity.ExtractionResult, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := provider.Extract(callCtx, req)
	finished := time.Now()

	attempt := entity.ProviderAttempt{
		ID:          uuid.New(),
		DocumentID:  req.DocumentID,
		ContentHash: req.ContentHash,
		Tenant:      req.Tenant,
		Provider:    provider.Name(),
		Model:       resp.Model,
		Try:         try,
		StartedAt:   started,
		FinishedAt:  finished,
	}

	if err != nil {
		attempt.Outcome = c.classify(ctx, err)
		attempt.Error = err.Error()
		if attempt.Model == "" {
			attempt.Model = "unknown"
		}
		c.log.Warn("fallback.attempt.failed",
			"provider", provider.Name(),
			"document_id", req.DocumentID,
			"try", try,
			"outcome", attempt.Outcome,
			"error", err,
		)
		return attempt, entity.ExtractionResult{}, err
	}

	result := entity.ExtractionResult{
		ID:          uuid.New(),
		DocumentID:  req.DocumentID,
		ContentHash: req.ContentHash,
		Tenant:      req.Tenant,
		Fields:      resp.Fields,
		RawJSON:     resp.RawJSON,
		Provider:    provider.Name(),
		Model:       resp.Model,
		Confidence:  resp.Confidence,
		Usage:       resp.Usage,
		Cost:        constants.CostUSD(provider.Name(), resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Latency:     finished.Sub(started),
	}
	attempt.Outcome = constants.OutcomeSuccess
	attempt.Usage = resp.Usage
	attempt.Cost = result.Cost
	attempt.ResultID = &result.ID

	c.log.Info("fallback.attempt.ok",
		"provider", provider.Name(),
		"document_id", req.DocumentID,
		"try", try,
		"tokens", resp.Usage.TotalTokens(),
		"cost", result.Cost,
	)
	return attempt, result, nil
}

// classify maps a call error to an attempt outcome. The parent context is
// consulted so a caller-cancelled run is distinguished from a per-call
// timeout: the former stops the whole chain, the latter schedules a retry.
func (c *Client) classify(parent context.Context, err error) constants.AttemptOutcome {
	if parent.Err() != nil {
		return constants.OutcomeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return constants.OutcomeTimeout
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) && !pe.Transient {
		return constants.OutcomePermanentFailure
	}
	return constants.OutcomeTransientFailure
}

// backoff returns the delay before retry number try+1: base doubled per
// completed try, capped.
func (c *Client) backoff(try int) time.Duration {
	d := c.cfg.BackoffBase
	if d <= 0 {
		d = 250 * time.Millisecond
	}
	for i := 1; i < try; i++ {
		d *= 2
		if c.cfg.BackoffCap > 0 && d >= c.cfg.BackoffCap {
			return c.cfg.BackoffCap
		}
	}
	if c.cfg.BackoffCap > 0 && d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
