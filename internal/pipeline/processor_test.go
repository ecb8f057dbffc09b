package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/cache"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/validate"
)

// fakeExtractor returns a scripted result per content hash and counts calls.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	results map[string]entity.ExtractionResult
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, req llm.ExtractRequest) (entity.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return entity.ExtractionResult{}, err
	}
	if f.err != nil {
		return entity.ExtractionResult{}, f.err
	}
	res, ok := f.results[req.ContentHash]
	if !ok {
		return entity.ExtractionResult{}, errors.New("no scripted result")
	}
	res.ID = uuid.New()
	res.DocumentID = req.DocumentID
	res.ContentHash = req.ContentHash
	res.Tenant = req.Tenant
	return res, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeRepo records persistence calls in memory. With trackStatus set it also
// serves StatusFor from prior writes, modelling the reentry lookup.
type fakeRepo struct {
	mu          sync.Mutex
	trackStatus bool
	statuses    map[string]constants.DocumentStatus
	accepted    []entity.ExtractionResult
	reviews     [][]string
	marks       []string
	statusErr   error
}

func newFakeRepo(trackStatus bool) *fakeRepo {
	return &fakeRepo{trackStatus: trackStatus, statuses: make(map[string]constants.DocumentStatus)}
}

func (r *fakeRepo) UpsertAccepted(ctx context.Context, doc *entity.Document, result entity.ExtractionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, result)
	if r.trackStatus {
		r.statuses[doc.ContentHash] = constants.DocStatusAccepted
	}
	return nil
}

func (r *fakeRepo) EnqueueReview(ctx context.Context, doc *entity.Document, result entity.ExtractionResult, reasons []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = append(r.reviews, reasons)
	if r.trackStatus {
		r.statuses[doc.ContentHash] = constants.DocStatusReview
	}
	return nil
}

func (r *fakeRepo) MarkStatus(ctx context.Context, doc *entity.Document, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, string(doc.Status))
	return nil
}

func (r *fakeRepo) StatusFor(ctx context.Context, contentHash string) (constants.DocumentStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statusErr != nil {
		return "", false, r.statusErr
	}
	status, ok := r.statuses[contentHash]
	return status, ok, nil
}

func (r *fakeRepo) acceptedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accepted)
}

func (r *fakeRepo) reviewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reviews)
}

func consistentFields() entity.InvoiceFields {
	return entity.InvoiceFields{
		OrderID:      "ORD-1001",
		MerchantName: "Thai Palace",
		OrderedAt:    "2026-08-20",
		Items: []entity.LineItem{
			{Name: "Pad Thai", Quantity: 2, UnitPrice: 10.00, Total: 20.00},
		},
		Subtotal:    20.00,
		DeliveryFee: 3.99,
		Total:       23.99,
	}
}

func scriptedResult(t *testing.T, confidence float64) entity.ExtractionResult {
	t.Helper()
	fields := consistentFields()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return entity.ExtractionResult{
		Fields:     fields,
		RawJSON:    raw,
		Provider:   constants.ProviderGemini,
		Model:      "gemini-2.0-flash",
		Confidence: confidence,
		Usage:      entity.Usage{InputTokens: 1000, OutputTokens: 200},
	}
}

func newTestProcessor(t *testing.T, extractor Extractor, repo *fakeRepo) *Processor {
	t.Helper()
	engine, err := validate.NewEngine(validate.Config{AcceptThreshold: 0.90, RejectThreshold: 0.50}, nil)
	require.NoError(t, err)
	c := cache.New(cache.Config{TTL: time.Hour}, nil)
	return NewProcessor(nil, c, extractor, engine, repo, nil)
}

func pendingDoc(hash string) *entity.Document {
	return &entity.Document{
		ID:          uuid.New(),
		Key:         "invoices/a.pdf",
		ContentHash: hash,
		Tenant:      "acme",
		ArrivedAt:   time.Now(),
		Status:      constants.DocStatusPending,
	}
}

func TestProcessAcceptPersistsAndCaches(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]entity.ExtractionResult{
		"hash-a": scriptedResult(t, 0.95),
	}}
	repo := newFakeRepo(false)
	p := newTestProcessor(t, extractor, repo)

	doc := pendingDoc("hash-a")
	outcome := p.Process(context.Background(), doc, []byte("invoice text"), false)
	require.NoError(t, outcome.Err)

	assert.Equal(t, constants.DocStatusAccepted, doc.Status)
	assert.False(t, outcome.FromCache)
	assert.Equal(t, constants.VerdictAccept, outcome.Result.Verdict)
	assert.Equal(t, 1, repo.acceptedCount())

	// Same content again: served from cache, no new provider call.
	doc2 := pendingDoc("hash-a")
	outcome2 := p.Process(context.Background(), doc2, []byte("invoice text"), false)
	require.NoError(t, outcome2.Err)
	assert.Equal(t, constants.DocStatusCached, doc2.Status)
	assert.True(t, outcome2.FromCache)
	assert.Equal(t, 1, extractor.callCount())
	assert.Equal(t, 1, repo.acceptedCount())
}

func TestProcessReviewIsNotCached(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]entity.ExtractionResult{
		"hash-a": scriptedResult(t, 0.75),
	}}
	repo := newFakeRepo(false)
	p := newTestProcessor(t, extractor, repo)

	doc := pendingDoc("hash-a")
	outcome := p.Process(context.Background(), doc, []byte("invoice text"), false)
	require.NoError(t, outcome.Err)

	assert.Equal(t, constants.DocStatusReview, doc.Status)
	assert.Equal(t, 1, repo.reviewCount())
	assert.Equal(t, 0, repo.acceptedCount())

	// Review verdicts must be recomputed, never served from cache.
	doc2 := pendingDoc("hash-a")
	p.Process(context.Background(), doc2, []byte("invoice text"), false)
	assert.Equal(t, 2, extractor.callCount())
}

func TestProcessRejectFails(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]entity.ExtractionResult{
		"hash-a": scriptedResult(t, 0.30),
	}}
	repo := newFakeRepo(false)
	p := newTestProcessor(t, extractor, repo)

	doc := pendingDoc("hash-a")
	outcome := p.Process(context.Background(), doc, []byte("invoice text"), false)
	require.Error(t, outcome.Err)
	assert.True(t, IsRejection(outcome.Err))
	assert.Equal(t, constants.DocStatusFailed, doc.Status)
	assert.Equal(t, 0, repo.acceptedCount())
	assert.Equal(t, 0, repo.reviewCount())
}

func TestProcessExtractionFailureMarksFailed(t *testing.T) {
	extractor := &fakeExtractor{err: common.ErrExtractionFailed}
	repo := newFakeRepo(false)
	p := newTestProcessor(t, extractor, repo)

	doc := pendingDoc("hash-a")
	outcome := p.Process(context.Background(), doc, []byte("invoice text"), false)
	require.Error(t, outcome.Err)
	assert.ErrorIs(t, outcome.Err, common.ErrExtractionFailed)
	assert.Equal(t, constants.DocStatusFailed, doc.Status)
}

func TestProcessRedeliverySkipped(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]entity.ExtractionResult{
		"hash-a": scriptedResult(t, 0.95),
	}}
	repo := newFakeRepo(true)
	p := newTestProcessor(t, extractor, repo)

	doc := pendingDoc("hash-a")
	p.Process(context.Background(), doc, []byte("invoice text"), false)
	require.Equal(t, 1, extractor.callCount())

	// Redelivered content already ACCEPTED: skipped before cache or provider.
	doc2 := pendingDoc("hash-a")
	outcome := p.Process(context.Background(), doc2, []byte("invoice text"), false)
	require.NoError(t, outcome.Err)
	assert.Equal(t, constants.DocStatusAccepted, doc2.Status)
	assert.Equal(t, 1, extractor.callCount())

	// Force overrides the reentry policy; the cache still answers.
	doc3 := pendingDoc("hash-a")
	outcome = p.Process(context.Background(), doc3, []byte("invoice text"), true)
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.FromCache)
	assert.Equal(t, 1, extractor.callCount())
}

func TestProcessStatusLookupFailureDoesNotBlock(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]entity.ExtractionResult{
		"hash-a": scriptedResult(t, 0.95),
	}}
	repo := newFakeRepo(false)
	repo.statusErr = errors.New("db down")
	p := newTestProcessor(t, extractor, repo)

	doc := pendingDoc("hash-a")
	outcome := p.Process(context.Background(), doc, []byte("invoice text"), false)
	require.NoError(t, outcome.Err)
	assert.Equal(t, constants.DocStatusAccepted, doc.Status)
}

func TestProcessCancelledContextLeavesDocRerunnable(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]entity.ExtractionResult{
		"hash-a": scriptedResult(t, 0.95),
	}}
	repo := newFakeRepo(false)
	p := newTestProcessor(t, extractor, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := pendingDoc("hash-a")
	outcome := p.Process(ctx, doc, []byte("invoice text"), false)
	require.Error(t, outcome.Err)
	assert.NotEqual(t, constants.DocStatusFailed, doc.Status)
	assert.Empty(t, repo.marks)
}
