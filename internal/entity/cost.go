package entity

import (
	"time"

	"github.com/google/uuid"
)

// CostRecord aggregates provider attempts along one dimension
// (per-document, per-tenant, per-provider).
type CostRecord struct {
	Key          string        `json:"key"`
	Attempts     int           `json:"attempts"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Latency      time.Duration `json:"latency"` // cumulative
}

// RunSummary reports the outcome of one extraction run to the trigger.
type RunSummary struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	Batches    int       `json:"batches"`
	Accepted   int       `json:"accepted"`
	Review     int       `json:"review"`
	Failed     int       `json:"failed"`
	Cached     int       `json:"cached"`
	Cost       float64   `json:"cost"`
}
