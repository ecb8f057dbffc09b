package constants

// Provider identifiers used in fallback order configuration and cost records.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ModelPricing holds USD prices per million tokens.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Per-model pricing tables. Unknown models fall back to the cheapest tier of
// their provider so cost attribution degrades toward underestimation, never a
// missing record.
var modelPricing = map[string]map[string]ModelPricing{
	ProviderOpenAI: {
		"gpt-4o":      {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		"gpt-4o-mini": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
		"gpt-4-turbo": {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	},
	ProviderAnthropic: {
		"claude-3-opus-20240229":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
		"claude-3-sonnet-20240229": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-3-haiku-20240307":  {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	},
	ProviderGemini: {
		"gemini-1.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 5.00},
		"gemini-1.5-flash": {InputPerMTok: 0.075, OutputPerMTok: 0.30},
	},
}

var defaultPricing = map[string]ModelPricing{
	ProviderOpenAI:    {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	ProviderAnthropic: {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	ProviderGemini:    {InputPerMTok: 0.075, OutputPerMTok: 0.30},
}

// PricingFor resolves the pricing for a provider/model pair.
func PricingFor(provider, model string) ModelPricing {
	if models, ok := modelPricing[provider]; ok {
		if p, ok := models[model]; ok {
			return p
		}
	}
	return defaultPricing[provider]
}

// CostUSD computes the cost of one call from its token counts.
func CostUSD(provider, model string, inputTokens, outputTokens int) float64 {
	p := PricingFor(provider, model)
	return (float64(inputTokens)*p.InputPerMTok + float64(outputTokens)*p.OutputPerMTok) / 1_000_000
}
