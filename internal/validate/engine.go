// Package validate is the quality gate between provider output and
// persistence: structural schema check, confidence thresholds, then
// cross-field business rules. Its job is to bound false-positive persisted
// invoices while keeping the human-review queue small.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
)

// Config holds the confidence thresholds and the monetary tolerance used by
// cross-field consistency checks.
type Config struct {
	AcceptThreshold float64
	RejectThreshold float64
	TotalTolerance  float64 // default 0.01
}

// Report is the gate's verdict with the violations that produced it.
type Report struct {
	Verdict    constants.Verdict
	Violations []string
}

// Engine applies the three-tier classification. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	cfg    Config
	schema *jsonschema.Schema
	log    *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TotalTolerance <= 0 {
		cfg.TotalTolerance = 0.01
	}
	if cfg.RejectThreshold < 0 || cfg.AcceptThreshold > 1 || cfg.RejectThreshold > cfg.AcceptThreshold {
		return nil, fmt.Errorf("thresholds must satisfy 0 <= reject <= accept <= 1, got reject=%v accept=%v",
			cfg.RejectThreshold, cfg.AcceptThreshold)
	}

	b, err := json.Marshal(llm.BuildInvoiceJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("invoice.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Engine{cfg: cfg, schema: schema, log: logger}, nil
}

// Validate classifies one extraction result. A structural failure forces
// REJECT regardless of confidence; business-rule violations downgrade an
// ACCEPT to REVIEW but never upgrade anything.
func (e *Engine) Validate(result entity.ExtractionResult) Report {
	if violations := e.structural(result.RawJSON); len(violations) > 0 {
		e.log.Warn("validate.structural_failed",
			"document_id", result.DocumentID,
			"provider", result.Provider,
			"violations", len(violations),
		)
		return Report{Verdict: constants.VerdictReject, Violations: violations}
	}

	switch {
	case result.Confidence < e.cfg.RejectThreshold:
		return Report{
			Verdict:    constants.VerdictReject,
			Violations: []string{fmt.Sprintf("confidence %.2f below reject threshold %.2f", result.Confidence, e.cfg.RejectThreshold)},
		}
	case result.Confidence < e.cfg.AcceptThreshold:
		report := Report{Verdict: constants.VerdictReview}
		report.Violations = append(
			[]string{fmt.Sprintf("confidence %.2f below accept threshold %.2f", result.Confidence, e.cfg.AcceptThreshold)},
			e.consistency(result.Fields)...,
		)
		return report
	}

	if violations := e.consistency(result.Fields); len(violations) > 0 {
		e.log.Info("validate.downgraded",
			"document_id", result.DocumentID,
			"violations", violations,
		)
		return Report{Verdict: constants.VerdictReview, Violations: violations}
	}
	return Report{Verdict: constants.VerdictAccept}
}

// structural validates the raw provider JSON against the invoice schema.
func (e *Engine) structural(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{"empty extraction payload"}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := e.schema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			violations := make([]string, 0, len(ve.Causes))
			for _, cause := range ve.Causes {
				violations = append(violations, cause.Error())
			}
			if len(violations) == 0 {
				violations = append(violations, ve.Error())
			}
			return violations
		}
		return []string{err.Error()}
	}
	return nil
}

// consistency enforces cross-field arithmetic within tolerance:
// each line total vs quantity x unit price, the subtotal vs the line sum,
// and the stated total vs the sum of its components.
func (e *Engine) consistency(f entity.InvoiceFields) []string {
	var violations []string
	tol := e.cfg.TotalTolerance

	var itemSum float64
	for i, item := range f.Items {
		expected := float64(item.Quantity) * item.UnitPrice
		if math.Abs(item.Total-expected) > tol {
			violations = append(violations,
				fmt.Sprintf("item %d (%s): total %.2f != %d x %.2f", i, item.Name, item.Total, item.Quantity, item.UnitPrice))
		}
		itemSum += item.Total
	}
	if len(f.Items) > 0 && math.Abs(f.Subtotal-itemSum) > tol {
		violations = append(violations,
			fmt.Sprintf("subtotal %.2f != line item sum %.2f", f.Subtotal, itemSum))
	}

	expectedTotal := f.Subtotal + f.DeliveryFee + f.ServiceFee + f.Tip
	if math.Abs(f.Total-expectedTotal) > tol {
		violations = append(violations,
			fmt.Sprintf("total %.2f != subtotal+fees+tip %.2f", f.Total, expectedTotal))
	}
	return violations
}
