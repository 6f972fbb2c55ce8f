// Package llm implements the tiered model router: tier selection,
// OpenAI-compatible chat-completions invocation, per-call usage
// accounting, and the retry/fallback ladder.
package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zerohq/agentcorp/pkg/models"
)

// TierConfig describes one model tier.
type TierConfig struct {
	Tier           models.ModelTier
	ModelName      string
	BaseURL        string
	APIKey         string
	MaxTokens      int
	InputPerK      float64 // USD per 1k input tokens
	OutputPerK     float64 // USD per 1k output tokens
	TimeoutSeconds int
}

// Registry holds the three tier configurations.
type Registry struct {
	tiers map[models.ModelTier]TierConfig
}

// NewRegistry builds a Registry from explicit tier configs.
func NewRegistry(configs ...TierConfig) (*Registry, error) {
	r := &Registry{tiers: make(map[models.ModelTier]TierConfig, len(configs))}
	for _, cfg := range configs {
		if cfg.ModelName == "" || cfg.APIKey == "" {
			return nil, fmt.Errorf("tier %s: model name and api key are required", cfg.Tier)
		}
		r.tiers[cfg.Tier] = cfg
	}
	for _, tier := range []models.ModelTier{models.TierT1, models.TierT2, models.TierT3} {
		if _, ok := r.tiers[tier]; !ok {
			return nil, fmt.Errorf("tier %s is not configured", tier)
		}
	}
	return r, nil
}

// LoadRegistryFromEnv reads the three tier configurations from the
// environment (LLM_T1_MODEL, LLM_T1_BASE_URL, ...). A single shared
// LLM_API_KEY is the default key for every tier.
func LoadRegistryFromEnv() (*Registry, error) {
	sharedKey := os.Getenv("LLM_API_KEY")
	load := func(tier models.ModelTier, defModel string, defMax int, defIn, defOut float64) TierConfig {
		prefix := "LLM_" + strings.ToUpper(string(tier)) + "_"
		return TierConfig{
			Tier:           tier,
			ModelName:      getEnvOrDefault(prefix+"MODEL", defModel),
			BaseURL:        getEnvOrDefault(prefix+"BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnvOrDefault(prefix+"API_KEY", sharedKey),
			MaxTokens:      getEnvIntOrDefault(prefix+"MAX_TOKENS", defMax),
			InputPerK:      getEnvFloatOrDefault(prefix+"INPUT_PER_1K", defIn),
			OutputPerK:     getEnvFloatOrDefault(prefix+"OUTPUT_PER_1K", defOut),
			TimeoutSeconds: getEnvIntOrDefault(prefix+"TIMEOUT_SECONDS", 120),
		}
	}
	return NewRegistry(
		load(models.TierT1, "gpt-4o-mini", 2048, 0.00015, 0.0006),
		load(models.TierT2, "gpt-4o", 4096, 0.0025, 0.01),
		load(models.TierT3, "gpt-4.1", 8192, 0.002, 0.008),
	)
}

// Get returns the configuration for a tier.
func (r *Registry) Get(tier models.ModelTier) TierConfig {
	return r.tiers[tier]
}

// EstimateCost computes the estimated USD cost of a call.
func (c TierConfig) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*c.InputPerK + float64(outputTokens)/1000*c.OutputPerK
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
