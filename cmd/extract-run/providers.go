package main

import (
	"log/slog"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm/anthropic"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm/gemini"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm/openai"
)

// buildProviders constructs one client per configured provider, skipping
// any without an API key so the fallback order degrades instead of failing.
func buildProviders(cfg *common.Config, logger *slog.Logger) map[string]llm.Provider {
	timeout := cfg.Fallback.CallTimeout
	providers := make(map[string]llm.Provider)
	if pc := cfg.Providers.Gemini; pc.APIKey != "" {
		providers[constants.ProviderGemini] = gemini.FromProviderConfig(pc, timeout, logger)
	} else {
		logger.Warn("provider skipped, no api key", "provider", constants.ProviderGemini)
	}
	if pc := cfg.Providers.OpenAI; pc.APIKey != "" {
		providers[constants.ProviderOpenAI] = openai.FromProviderConfig(pc, timeout, logger)
	} else {
		logger.Warn("provider skipped, no api key", "provider", constants.ProviderOpenAI)
	}
	if pc := cfg.Providers.Anthropic; pc.APIKey != "" {
		providers[constants.ProviderAnthropic] = anthropic.FromProviderConfig(pc, timeout, logger)
	} else {
		logger.Warn("provider skipped, no api key", "provider", constants.ProviderAnthropic)
	}
	return providers
}
