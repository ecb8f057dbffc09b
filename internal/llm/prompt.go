package llm

import (
	"encoding/json"
	"strings"
)

// MaxPromptChars bounds how much document text is sent per call; invoices
// rarely carry useful fields past the first few thousand characters and
// truncation keeps input token cost flat.
const MaxPromptChars = 3500

// SystemPrompt instructs the model on the output contract.
const SystemPrompt = "You are an invoice parser. Extract structured data from delivery-platform invoices " +
	"and return ONLY JSON that matches the JSON Schema provided. " +
	"All monetary values must be numbers. Use ISO-8601 datetimes. " +
	"Ensure totals are consistent: total = subtotal + delivery_fee + service_fee + tip. " +
	"Report your extraction confidence (0..1) in the 'confidence' field. " +
	"Never output null; omit fields that are not present."

// BuildUserPrompt renders the per-document prompt with the schema inlined.
func BuildUserPrompt(req ExtractRequest, schema map[string]any) string {
	text := req.Text
	if len(text) > MaxPromptChars {
		text = text[:MaxPromptChars]
	}

	var b strings.Builder
	b.WriteString("File: ")
	b.WriteString(req.FileKey)
	b.WriteString("\n\nInvoice text:\n")
	b.WriteString(text)
	b.WriteString("\n\nReturn ONLY JSON matching this schema:\n")
	b.WriteString(mustJSON(schema))
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
