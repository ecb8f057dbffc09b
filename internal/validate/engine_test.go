package validate

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Config{AcceptThreshold: 0.90, RejectThreshold: 0.50}, nil)
	require.NoError(t, err)
	return e
}

// validFields builds an arithmetically consistent invoice:
// 2 x 10.00 + 1 x 5.50 = 25.50 subtotal, + 3.99 + 1.50 + 4.00 = 34.99 total.
func validFields() entity.InvoiceFields {
	return entity.InvoiceFields{
		OrderID:      "ORD-1001",
		MerchantName: "Thai Palace",
		OrderedAt:    "2026-08-20",
		Items: []entity.LineItem{
			{Name: "Pad Thai", Quantity: 2, UnitPrice: 10.00, Total: 20.00},
			{Name: "Spring Rolls", Quantity: 1, UnitPrice: 5.50, Total: 5.50},
		},
		Subtotal:    25.50,
		DeliveryFee: 3.99,
		ServiceFee:  1.50,
		Tip:         4.00,
		Total:       34.99,
	}
}

func resultWith(t *testing.T, fields entity.InvoiceFields, confidence float64) entity.ExtractionResult {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return entity.ExtractionResult{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		Fields:     fields,
		RawJSON:    raw,
		Provider:   constants.ProviderGemini,
		Confidence: confidence,
	}
}

func TestNewEngineRejectsBadThresholds(t *testing.T) {
	_, err := NewEngine(Config{AcceptThreshold: 0.5, RejectThreshold: 0.9}, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{AcceptThreshold: 1.5, RejectThreshold: 0.5}, nil)
	assert.Error(t, err)
}

func TestValidateConfidenceGating(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name       string
		confidence float64
		want       constants.Verdict
	}{
		{name: "high confidence accepts", confidence: 0.95, want: constants.VerdictAccept},
		{name: "at accept threshold accepts", confidence: 0.90, want: constants.VerdictAccept},
		{name: "mid confidence reviews", confidence: 0.75, want: constants.VerdictReview},
		{name: "just under accept reviews", confidence: 0.89, want: constants.VerdictReview},
		{name: "at reject threshold reviews", confidence: 0.50, want: constants.VerdictReview},
		{name: "low confidence rejects", confidence: 0.30, want: constants.VerdictReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := e.Validate(resultWith(t, validFields(), tt.confidence))
			assert.Equal(t, tt.want, report.Verdict)
			if tt.want == constants.VerdictAccept {
				assert.Empty(t, report.Violations)
			} else {
				assert.NotEmpty(t, report.Violations)
			}
		})
	}
}

func TestValidateStructuralFailureRejects(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty payload", raw: ""},
		{name: "not JSON", raw: "definitely not json"},
		{name: "missing required fields", raw: `{"merchant_name":"Thai Palace"}`},
		{name: "empty items", raw: `{"order_id":"ORD-1","merchant_name":"M","ordered_at":"2026-08-20","items":[],"subtotal":1,"total":1}`},
		{name: "negative money", raw: `{"order_id":"ORD-1","merchant_name":"M","ordered_at":"2026-08-20","items":[{"name":"x","quantity":1,"unit_price":-1,"total":-1}],"subtotal":-1,"total":-1}`},
		{name: "bad date format", raw: `{"order_id":"ORD-1","merchant_name":"M","ordered_at":"20 Aug 2026","items":[{"name":"x","quantity":1,"unit_price":1,"total":1}],"subtotal":1,"total":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resultWith(t, validFields(), 0.99)
			result.RawJSON = json.RawMessage(tt.raw)
			report := e.Validate(result)
			// Structural failure wins even at high confidence.
			assert.Equal(t, constants.VerdictReject, report.Verdict)
			assert.NotEmpty(t, report.Violations)
		})
	}
}

func TestValidateConsistencyDowngradesAccept(t *testing.T) {
	e := newTestEngine(t)

	t.Run("line item arithmetic off", func(t *testing.T) {
		f := validFields()
		f.Items[0].Total = 21.00 // 2 x 10.00 stated as 21.00
		f.Subtotal = 26.50
		f.Total = 35.99
		report := e.Validate(resultWith(t, f, 0.99))
		assert.Equal(t, constants.VerdictReview, report.Verdict)
		assert.NotEmpty(t, report.Violations)
	})

	t.Run("subtotal does not match line sum", func(t *testing.T) {
		f := validFields()
		f.Subtotal = 30.00
		f.Total = 39.49
		report := e.Validate(resultWith(t, f, 0.99))
		assert.Equal(t, constants.VerdictReview, report.Verdict)
	})

	t.Run("total does not match components", func(t *testing.T) {
		f := validFields()
		f.Total = 40.00
		report := e.Validate(resultWith(t, f, 0.99))
		assert.Equal(t, constants.VerdictReview, report.Verdict)
	})
}

func TestValidateToleratesRoundingDrift(t *testing.T) {
	e := newTestEngine(t)

	f := validFields()
	f.Total = 34.98 // one cent off, within the 0.01 tolerance
	report := e.Validate(resultWith(t, f, 0.99))
	assert.Equal(t, constants.VerdictAccept, report.Verdict)

	f.Total = 34.97 // two cents off
	report = e.Validate(resultWith(t, f, 0.99))
	assert.Equal(t, constants.VerdictReview, report.Verdict)
}

func TestValidateReviewKeepsConsistencyViolations(t *testing.T) {
	e := newTestEngine(t)

	f := validFields()
	f.Total = 99.00
	report := e.Validate(resultWith(t, f, 0.75))
	assert.Equal(t, constants.VerdictReview, report.Verdict)
	// Both the confidence shortfall and the arithmetic violation surface.
	assert.GreaterOrEqual(t, len(report.Violations), 2)
}
