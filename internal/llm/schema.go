package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is embedded in provider prompts as a structured output
// constraint and compiled by the validation engine for the structural check.
func BuildInvoiceJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":       map[string]any{"type": "string", "minLength": 1},
			"quantity":   map[string]any{"type": "integer", "minimum": 1},
			"unit_price": moneyProp(),
			"total":      moneyProp(),
		},
		"required": []string{"name", "quantity", "unit_price", "total"},
	}

	props := map[string]any{
		"order_id":      map[string]any{"type": "string", "minLength": 1},
		"merchant_name": map[string]any{"type": "string", "minLength": 1},
		"tax_id":        map[string]any{"type": "string"},
		"address":       map[string]any{"type": "string"},
		"ordered_at": map[string]any{
			"type":    "string",
			"pattern": `^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?(Z|[+-]\d{2}:\d{2})?)?$`,
		},
		"items":            map[string]any{"type": "array", "minItems": 1, "items": lineItem},
		"subtotal":         moneyProp(),
		"delivery_fee":     moneyProp(),
		"service_fee":      moneyProp(),
		"tip":              moneyProp(),
		"total":            moneyProp(),
		"payment_method":   map[string]any{"type": "string"},
		"delivery_address": map[string]any{"type": "string"},
		"delivery_time":    map[string]any{"type": "string"},
		"courier":          map[string]any{"type": "string"},
		"confidence":       map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	required := []string{"order_id", "merchant_name", "ordered_at", "items", "subtotal", "total"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func moneyProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0}
}
