// Package ledger keeps an append-only log of provider attempts for cost and
// latency attribution. Aggregation is a pure read-side computation over the
// log; records are keyed by their own identity, so out-of-order arrival from
// concurrent batches never double-counts or drops an attempt.
package ledger

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

// Dimension selects the grouping key for Aggregate.
type Dimension string

const (
	ByDocument Dimension = "document"
	ByTenant   Dimension = "tenant"
	ByProvider Dimension = "provider"
)

// Window bounds an aggregation by attempt start time. Zero values mean
// unbounded on that side.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// Ledger is a process-wide shared service; all methods are safe for
// concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	attempts []entity.ProviderAttempt
	seen     map[uuid.UUID]struct{}
	log      *slog.Logger
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		seen: make(map[uuid.UUID]struct{}),
		log:  logger,
	}
}

// Record appends one attempt. Re-delivery of an attempt already recorded
// (same ID) is ignored, so retrying callers cannot inflate totals.
func (l *Ledger) Record(attempt entity.ProviderAttempt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[attempt.ID]; dup {
		l.log.Warn("ledger.record.duplicate", "attempt_id", attempt.ID, "document_id", attempt.DocumentID)
		return
	}
	l.seen[attempt.ID] = struct{}{}
	l.attempts = append(l.attempts, attempt)

	l.log.Debug("ledger.record",
		"attempt_id", attempt.ID,
		"document_id", attempt.DocumentID,
		"provider", attempt.Provider,
		"outcome", attempt.Outcome,
		"cost", attempt.Cost,
	)
}

// Aggregate groups attempts within the window by the requested dimension and
// returns one CostRecord per key, sorted by key for stable output.
func (l *Ledger) Aggregate(w Window, dim Dimension) []entity.CostRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	grouped := make(map[string]*entity.CostRecord)
	for _, a := range l.attempts {
		if !w.contains(a.StartedAt) {
			continue
		}
		key := groupKey(a, dim)
		rec, ok := grouped[key]
		if !ok {
			rec = &entity.CostRecord{Key: key}
			grouped[key] = rec
		}
		rec.Attempts++
		rec.InputTokens += a.Usage.InputTokens
		rec.OutputTokens += a.Usage.OutputTokens
		rec.Cost += a.Cost
		rec.Latency += a.Latency()
	}

	out := make([]entity.CostRecord, 0, len(grouped))
	for _, rec := range grouped {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// TotalCost sums the cost of all attempts within the window.
func (l *Ledger) TotalCost(w Window) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, a := range l.attempts {
		if w.contains(a.StartedAt) {
			total += a.Cost
		}
	}
	return total
}

// AttemptsFor returns the recorded attempts for one document, in record order.
func (l *Ledger) AttemptsFor(documentID uuid.UUID) []entity.ProviderAttempt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []entity.ProviderAttempt
	for _, a := range l.attempts {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of recorded attempts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.attempts)
}

func groupKey(a entity.ProviderAttempt, dim Dimension) string {
	switch dim {
	case ByTenant:
		if a.Tenant == "" {
			return "unknown"
		}
		return a.Tenant
	case ByProvider:
		return a.Provider
	default:
		return a.DocumentID.String()
	}
}
