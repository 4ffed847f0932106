// Package config loads gateway configuration from a YAML file, with
// environment variable overrides and an in-memory default when no file
// is present.
package config

import (
	"fmt"
	"os"

	"github.com/Polqt/ratelimitgw/circuit"
	"github.com/Polqt/ratelimitgw/ratelimit"
	"github.com/Polqt/ratelimitgw/router"
	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	RateLimits       map[ratelimit.Tier]ratelimit.TierConfig `yaml:"rate_limits"`
	EndpointCosts    []router.EndpointConfig                 `yaml:"endpoint_costs"`
	UpstreamServices map[string]router.UpstreamServiceConfig `yaml:"upstream_services"`

	ClientIDHeader string `yaml:"client_id_header"`
	FallbackToIP   bool   `yaml:"fallback_to_ip"`

	MetricsEnabled          bool `yaml:"metrics_enabled"`
	MetricsRetentionSeconds int  `yaml:"metrics_retention_seconds"`
}

// defaults mirrors the teacher's in-memory default config, generalized
// to the gateway's full shape.
func defaults() Config {
	return Config{
		Host: "0.0.0.0",
		Port: 8080,

		RateLimits:    ratelimit.DefaultTierConfigs(),
		EndpointCosts: router.DefaultEndpointConfigs(),
		UpstreamServices: map[string]router.UpstreamServiceConfig{
			"default": {
				Name:           "default",
				BaseURL:        "http://localhost:9000",
				TimeoutSeconds: 30,
				CircuitBreaker: circuit.Config{
					FailureThreshold:       5,
					RecoveryTimeoutSeconds: 30,
					HalfOpenRequests:       3,
				},
			},
		},

		ClientIDHeader: "X-API-Key",
		FallbackToIP:   true,

		MetricsEnabled:          true,
		MetricsRetentionSeconds: 3600,
	}
}

// Load reads a YAML config file at path and applies defaults for
// missing fields. If the file does not exist, the full in-memory
// default config is returned instead of an error — matching the
// teacher's development-mode fallback.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// applyEnv overrides host/port/client-id-header from the environment,
// per spec.
func applyEnv(cfg *Config) {
	if host := os.Getenv("GATEWAY_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			cfg.Port = p
		}
	}
	if header := os.Getenv("GATEWAY_CLIENT_ID_HEADER"); header != "" {
		cfg.ClientIDHeader = header
	}
}
