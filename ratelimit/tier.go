// Package ratelimit implements the per-client token bucket rate limiter.
package ratelimit

// Tier is a named class of rate-limit parameters applied to a client.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// TierConfig is the capacity/refill pair for one tier.
type TierConfig struct {
	TokensPerSecond float64 `yaml:"tokens_per_second"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// DefaultTierConfigs returns the built-in tier table from spec.
func DefaultTierConfigs() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierFree:       {TokensPerSecond: 1, MaxTokens: 10},
		TierBasic:      {TokensPerSecond: 5, MaxTokens: 50},
		TierPremium:    {TokensPerSecond: 20, MaxTokens: 200},
		TierEnterprise: {TokensPerSecond: 100, MaxTokens: 1000},
	}
}

// configFor resolves a tier to its config, falling back to FREE for
// unknown tiers.
func configFor(configs map[Tier]TierConfig, tier Tier) TierConfig {
	if cfg, ok := configs[tier]; ok {
		return cfg
	}
	return configs[TierFree]
}
