package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
)

// ProviderAttempt records one call to one provider for one document.
// Attempts are immutable once created and retained for audit and cost
// attribution, including on failure and cancellation paths.
type ProviderAttempt struct {
	ID          uuid.UUID                `json:"id"`
	DocumentID  uuid.UUID                `json:"document_id"`
	ContentHash string                   `json:"content_hash"`
	Tenant      string                   `json:"tenant,omitempty"`
	Provider    string                   `json:"provider"`
	Model       string                   `json:"model"`
	Try         int                      `json:"try"` // 1-based attempt number within the provider
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at"`
	Outcome     constants.AttemptOutcome `json:"outcome"`
	Usage       Usage                    `json:"usage"`
	Cost        float64                  `json:"cost"`
	Error       string                   `json:"error,omitempty"`
	ResultID    *uuid.UUID               `json:"result_id,omitempty"` // set on SUCCESS
}

// Latency returns the wall-clock duration of the attempt.
func (a ProviderAttempt) Latency() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}
