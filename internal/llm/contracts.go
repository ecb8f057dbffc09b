// Package llm defines the provider capability interface the pipeline depends
// on, the invoice schema handed to providers, and prompt construction.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

// ExtractRequest carries one document's text to a provider.
type ExtractRequest struct {
	DocumentID  uuid.UUID
	ContentHash string
	Tenant      string
	FileKey     string // object-storage key, used as a filename hint
	Text        string
}

// Response is one provider's raw answer before validation.
type Response struct {
	Fields     entity.InvoiceFields
	RawJSON    []byte
	Model      string
	Confidence float64
	Usage      entity.Usage
}

// Provider is the capability interface every LLM backend implements:
// extract(document, schema) -> (result, confidence, usage). Implementations
// must honor ctx cancellation and return *ProviderError for call failures so
// the fallback client can classify them.
type Provider interface {
	Name() string
	Extract(ctx context.Context, req ExtractRequest) (Response, error)
}

// ProviderError classifies a failed provider call. Transient failures
// (rate limits, 5xx, network) are retried by the fallback client; permanent
// ones (malformed request, unsupported content) advance the fallback order
// immediately.
type ProviderError struct {
	Provider  string
	Status    int // HTTP status if applicable, 0 otherwise
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Provider, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable provider failure.
func Transient(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Transient: false, Err: err}
}

// StatusError classifies an HTTP status code into a provider error: 408, 429
// and 5xx are transient, everything else in the error range is permanent.
func StatusError(provider string, status int, err error) *ProviderError {
	transient := status == 408 || status == 429 || status >= 500
	return &ProviderError{Provider: provider, Status: status, Transient: transient, Err: err}
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
