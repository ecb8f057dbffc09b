// Package pipeline orchestrates extraction per document: cache check,
// provider fallback, validation, then persistence or review routing. Causal
// order within one document is strict; nothing is cached or accepted until
// validation completes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/cache"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/metrics"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/repository"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/validate"
)

// Extractor is the provider-fallback boundary. Satisfied by *fallback.Client.
type Extractor interface {
	Extract(ctx context.Context, req llm.ExtractRequest) (entity.ExtractionResult, error)
}

// Outcome is the terminal state of one document within a run.
type Outcome struct {
	Doc       *entity.Document
	Result    entity.ExtractionResult
	FromCache bool
	Err       error
}

// Processor runs one document through the extraction cycle.
type Processor struct {
	log       *slog.Logger
	cache     *cache.Cache
	extractor Extractor
	engine    *validate.Engine
	repo      repository.InvoiceRepository
	metrics   *metrics.Metrics
}

func NewProcessor(
	logger *slog.Logger,
	c *cache.Cache,
	extractor Extractor,
	engine *validate.Engine,
	repo repository.InvoiceRepository,
	m *metrics.Metrics,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		log:       logger,
		cache:     c,
		extractor: extractor,
		engine:    engine,
		repo:      repo,
		metrics:   m,
	}
}

// Process drives doc through cache -> provider fallback -> validation ->
// persistence. Re-delivered documents whose content is already ACCEPTED or
// sitting in REVIEW are not re-extracted unless force is set; this is the
// reentry policy that keeps re-triggered runs from double-billing.
func (p *Processor) Process(ctx context.Context, doc *entity.Document, content []byte, force bool) Outcome {
	if !force {
		if status, found, err := p.repo.StatusFor(ctx, doc.ContentHash); err != nil {
			// Status lookup is an optimization; a failing store must not
			// block extraction.
			p.log.Warn("process.status_lookup_failed", "document_id", doc.ID, "error", err)
		} else if found && (status == constants.DocStatusAccepted || status == constants.DocStatusReview) {
			p.log.Info("process.redelivery_skipped", "document_id", doc.ID, "key", doc.Key, "status", status)
			doc.Status = status
			return Outcome{Doc: doc}
		}
	}

	req := llm.ExtractRequest{
		DocumentID:  doc.ID,
		ContentHash: doc.ContentHash,
		Tenant:      doc.Tenant,
		FileKey:     doc.Key,
		Text:        string(content),
	}

	result, fromCache, err := p.cache.Fetch(ctx, doc.ContentHash, func(ctx context.Context) (entity.ExtractionResult, bool, error) {
		return p.extractAndValidate(ctx, doc, req)
	})
	p.metrics.ObserveCache(fromCache)

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-flight: attempts are already recorded, the
			// document stays re-runnable.
			return Outcome{Doc: doc, Err: err}
		}
		doc.Status = constants.DocStatusFailed
		if markErr := p.repo.MarkStatus(ctx, doc, err.Error()); markErr != nil {
			p.log.Error("process.mark_failed", "document_id", doc.ID, "error", markErr)
		}
		return Outcome{Doc: doc, Err: err}
	}

	switch result.Verdict {
	case constants.VerdictAccept:
		if fromCache {
			doc.Status = constants.DocStatusCached
		} else {
			doc.Status = constants.DocStatusAccepted
		}
	case constants.VerdictReview:
		doc.Status = constants.DocStatusReview
	default:
		// The compute path turns REJECT into an error; a cached result can
		// only carry ACCEPT.
		doc.Status = constants.DocStatusFailed
	}
	if err := p.repo.MarkStatus(ctx, doc, ""); err != nil {
		p.log.Error("process.mark_failed", "document_id", doc.ID, "error", err)
	}
	return Outcome{Doc: doc, Result: result, FromCache: fromCache}
}

// extractAndValidate is the single-flight compute path for a cache miss.
// The returned bool marks the result cacheable, which is true only for
// ACCEPT verdicts.
func (p *Processor) extractAndValidate(ctx context.Context, doc *entity.Document, req llm.ExtractRequest) (entity.ExtractionResult, bool, error) {
	doc.Status = constants.DocStatusExtracted
	result, err := p.extractor.Extract(ctx, req)
	if err != nil {
		return entity.ExtractionResult{}, false, err
	}

	doc.Status = constants.DocStatusValidating
	report := p.engine.Validate(result)
	result.Verdict = report.Verdict
	p.metrics.ObserveVerdict(string(report.Verdict))

	p.log.Info("process.validated",
		"document_id", doc.ID,
		"provider", result.Provider,
		"confidence", result.Confidence,
		"verdict", report.Verdict,
		"violations", len(report.Violations),
	)

	switch report.Verdict {
	case constants.VerdictAccept:
		if err := p.repo.UpsertAccepted(ctx, doc, result); err != nil {
			// Persistence failed: do not cache, the document must stay
			// re-runnable.
			return entity.ExtractionResult{}, false, err
		}
		return result, true, nil
	case constants.VerdictReview:
		if err := p.repo.EnqueueReview(ctx, doc, result, report.Violations); err != nil {
			return entity.ExtractionResult{}, false, err
		}
		return result, false, nil
	default:
		return entity.ExtractionResult{}, false,
			fmt.Errorf("%w: %v", common.ErrValidationRejected, report.Violations)
	}
}

// IsRejection reports whether err is a final validation REJECT.
func IsRejection(err error) bool {
	return errors.Is(err, common.ErrValidationRejected)
}
