package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
)

// LineItem is one invoice line.
type LineItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// InvoiceFields is the normalized shape we want from the LLM.
type InvoiceFields struct {
	OrderID         string     `json:"order_id"`
	MerchantName    string     `json:"merchant_name"`
	TaxID           string     `json:"tax_id,omitempty"` // CNPJ or equivalent
	Address         string     `json:"address,omitempty"`
	OrderedAt       string     `json:"ordered_at"` // ISO-8601 datetime
	Items           []LineItem `json:"items"`
	Subtotal        float64    `json:"subtotal"`
	DeliveryFee     float64    `json:"delivery_fee,omitempty"`
	ServiceFee      float64    `json:"service_fee,omitempty"`
	Tip             float64    `json:"tip,omitempty"`
	Total           float64    `json:"total"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	DeliveryTime    string     `json:"delivery_time,omitempty"`
	Courier         string     `json:"courier,omitempty"`
	ModelConfidence float64    `json:"confidence,omitempty"` // self-reported (0..1)
}

// Usage is raw token accounting for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns input + output tokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// ExtractionResult is the structured output of one successful provider call.
// A document may accumulate several across retries; only the one whose
// Verdict is ACCEPT is persisted and cached.
type ExtractionResult struct {
	ID          uuid.UUID         `json:"id"`
	DocumentID  uuid.UUID         `json:"document_id"`
	ContentHash string            `json:"content_hash"`
	Tenant      string            `json:"tenant,omitempty"`
	Fields      InvoiceFields     `json:"fields"`
	RawJSON     json.RawMessage   `json:"raw_json,omitempty"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Confidence  float64           `json:"confidence"`
	Usage       Usage             `json:"usage"`
	Cost        float64           `json:"cost"`
	Latency     time.Duration     `json:"latency"`
	Verdict     constants.Verdict `json:"verdict,omitempty"` // set by the validation gate
}
