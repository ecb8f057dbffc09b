// Package repository persists extraction outcomes: accepted invoices, the
// human-review queue, and per-document status used for idempotent
// re-delivery. The core writes nothing else durable beyond cache and ledger.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

// InvoiceRepository is the persistence collaborator boundary.
type InvoiceRepository interface {
	// UpsertAccepted stores an accepted extraction keyed by order id; re-runs
	// of the same document update in place rather than duplicating.
	UpsertAccepted(ctx context.Context, doc *entity.Document, result entity.ExtractionResult) error
	// EnqueueReview hands a result to the human-review queue with the
	// violations that caused the downgrade.
	EnqueueReview(ctx context.Context, doc *entity.Document, result entity.ExtractionResult, reasons []string) error
	// MarkStatus records a document's terminal or transitional status.
	MarkStatus(ctx context.Context, doc *entity.Document, errMsg string) error
	// StatusFor returns the last recorded status for a content hash.
	StatusFor(ctx context.Context, contentHash string) (constants.DocumentStatus, bool, error)
}

type invoiceRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewInvoiceRepository(pool *pgxpool.Pool, log *slog.Logger) InvoiceRepository {
	if log == nil {
		log = slog.Default()
	}
	return &invoiceRepo{pool: pool, log: log}
}

func (r *invoiceRepo) UpsertAccepted(ctx context.Context, doc *entity.Document, result entity.ExtractionResult) error {
	items, err := json.Marshal(result.Fields.Items)
	if err != nil {
		return common.WrapError(err, "marshal line items")
	}

	f := result.Fields
	_, err = r.pool.Exec(ctx, `
		INSERT INTO invoices (
			order_id, document_id, file_key, content_hash, tenant,
			merchant_name, tax_id, address, ordered_at, items,
			subtotal, delivery_fee, service_fee, tip, total,
			payment_method, delivery_address, courier,
			provider, model, input_tokens, output_tokens, cost, latency_ms,
			confidence, raw_data, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, now()
		)
		ON CONFLICT (order_id) DO UPDATE SET
			raw_data = EXCLUDED.raw_data, updated_at = now()`,
		f.OrderID, result.DocumentID, doc.Key, result.ContentHash, result.Tenant,
		f.MerchantName, f.TaxID, f.Address, f.OrderedAt, items,
		f.Subtotal, f.DeliveryFee, f.ServiceFee, f.Tip, f.Total,
		f.PaymentMethod, f.DeliveryAddress, f.Courier,
		result.Provider, result.Model, result.Usage.InputTokens, result.Usage.OutputTokens,
		result.Cost, result.Latency.Milliseconds(),
		result.Confidence, []byte(result.RawJSON),
	)
	if err != nil {
		r.log.Error("invoice upsert failed", "order_id", f.OrderID, "document_id", result.DocumentID, "err", err)
		return common.WrapError(err, "upsert invoice")
	}
	r.log.Info("invoice upserted", "order_id", f.OrderID, "document_id", result.DocumentID, "total", f.Total)
	return nil
}

func (r *invoiceRepo) EnqueueReview(ctx context.Context, doc *entity.Document, result entity.ExtractionResult, reasons []string) error {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return common.WrapError(err, "marshal review reasons")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO review_queue (
			document_id, file_key, content_hash, tenant,
			provider, model, confidence, reasons, raw_data, queued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (content_hash) DO UPDATE SET
			reasons = EXCLUDED.reasons, raw_data = EXCLUDED.raw_data, queued_at = now()`,
		result.DocumentID, doc.Key, result.ContentHash, result.Tenant,
		result.Provider, result.Model, result.Confidence, reasonsJSON, []byte(result.RawJSON),
	)
	if err != nil {
		r.log.Error("review enqueue failed", "document_id", result.DocumentID, "err", err)
		return common.WrapError(err, "enqueue review")
	}
	r.log.Info("review enqueued", "document_id", result.DocumentID, "reasons", len(reasons))
	return nil
}

func (r *invoiceRepo) MarkStatus(ctx context.Context, doc *entity.Document, errMsg string) error {
	var finished *time.Time
	switch doc.Status {
	case constants.DocStatusAccepted, constants.DocStatusReview, constants.DocStatusFailed, constants.DocStatusCached:
		now := time.Now()
		finished = &now
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, file_key, content_hash, tenant, status, error_message, arrived_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (content_hash) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at`,
		doc.ID, doc.Key, doc.ContentHash, doc.Tenant, string(doc.Status), errMsg, doc.ArrivedAt, finished,
	)
	if err != nil {
		r.log.Error("document status update failed", "document_id", doc.ID, "status", doc.Status, "err", err)
		return common.WrapError(err, "mark document status")
	}
	return nil
}

func (r *invoiceRepo) StatusFor(ctx context.Context, contentHash string) (constants.DocumentStatus, bool, error) {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM documents WHERE content_hash = $1`, contentHash,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, common.WrapError(err, "query document status")
	}
	return constants.DocumentStatus(status), true, nil
}
