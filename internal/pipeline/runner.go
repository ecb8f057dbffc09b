package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/batch"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/ledger"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/storage"
)

// RunRequest is what the external scheduler hands the core: either explicit
// object keys or a prefix to list. Force re-runs documents that already
// reached ACCEPTED/REVIEW.
type RunRequest struct {
	Keys   []string `json:"keys,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
	Tenant string   `json:"tenant,omitempty"`
	Force  bool     `json:"force,omitempty"`
}

// Runner assembles pending documents into batches and drives them through
// the processor with bounded concurrency. Batches are submitted FIFO;
// completion order across documents is unspecified.
type Runner struct {
	log    *slog.Logger
	store  storage.Storage
	proc   *Processor
	ledger *ledger.Ledger
	cfg    common.PipelineConfig
}

func NewRunner(logger *slog.Logger, store storage.Storage, proc *Processor, led *ledger.Ledger, cfg common.PipelineConfig) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{log: logger, store: store, proc: proc, ledger: led, cfg: cfg}
}

// Run executes one extraction cycle and reports per-status counts and cost.
// Documents that cannot be fetched are counted as failed and logged, never
// silently dropped. The returned error is non-nil only for run-level
// failures (listing, cancellation), not per-document ones.
func (r *Runner) Run(ctx context.Context, req RunRequest) (entity.RunSummary, error) {
	summary := entity.RunSummary{RunID: uuid.New(), StartedAt: time.Now()}

	keys := req.Keys
	if len(keys) == 0 {
		objects, err := r.store.List(ctx, req.Prefix)
		if err != nil {
			return summary, common.WrapError(err, "list pending documents")
		}
		for _, obj := range objects {
			keys = append(keys, obj.Key)
		}
	}
	r.log.Info("run.start",
		"run_id", summary.RunID,
		"documents", len(keys),
		"prefix", req.Prefix,
		"force", req.Force,
	)

	pending := make([]*entity.Document, 0, len(keys))
	for _, key := range keys {
		pending = append(pending, &entity.Document{
			ID:        uuid.New(),
			Key:       key,
			Tenant:    req.Tenant,
			ArrivedAt: time.Now(),
			Status:    constants.DocStatusPending,
		})
	}
	summary.Documents = len(pending)

	batches, err := batch.Assemble(pending, r.cfg.MaxBatchSize)
	if err != nil {
		return summary, err
	}
	summary.Batches = len(batches)

	var mu sync.Mutex
	for _, b := range batches {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)
		for _, doc := range b.Docs {
			doc := doc
			g.Go(func() error {
				outcome := r.processOne(gctx, doc, req.Force)
				mu.Lock()
				r.tally(&summary, outcome)
				mu.Unlock()
				// Per-document failures are part of the summary, not a
				// reason to stop the batch.
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return summary, err
		}
		if ctx.Err() != nil {
			summary.FinishedAt = time.Now()
			return summary, ctx.Err()
		}
	}

	summary.FinishedAt = time.Now()
	r.log.Info("run.done",
		"run_id", summary.RunID,
		"accepted", summary.Accepted,
		"review", summary.Review,
		"failed", summary.Failed,
		"cached", summary.Cached,
		"cost", summary.Cost,
		"elapsed_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	return summary, nil
}

func (r *Runner) processOne(ctx context.Context, doc *entity.Document, force bool) Outcome {
	content, err := r.store.Fetch(ctx, doc.Key)
	if err != nil {
		r.log.Error("run.fetch_failed", "key", doc.Key, "error", err)
		doc.Status = constants.DocStatusFailed
		return Outcome{Doc: doc, Err: common.WrapError(err, "fetch document")}
	}
	sum := sha256.Sum256(content)
	doc.ContentHash = hex.EncodeToString(sum[:])
	doc.Size = int64(len(content))

	return r.proc.Process(ctx, doc, content, force)
}

func (r *Runner) tally(summary *entity.RunSummary, outcome Outcome) {
	switch outcome.Doc.Status {
	case constants.DocStatusAccepted:
		summary.Accepted++
	case constants.DocStatusCached:
		summary.Cached++
	case constants.DocStatusReview:
		summary.Review++
	case constants.DocStatusFailed:
		summary.Failed++
	default:
		// Cancelled before reaching a terminal state; count as failed so
		// the run report never under-reports work left behind.
		summary.Failed++
	}
	for _, a := range r.ledger.AttemptsFor(outcome.Doc.ID) {
		summary.Cost += a.Cost
	}
}
