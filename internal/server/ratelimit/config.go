package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EndpointConfig limits the requests matching one path pattern and method.
type EndpointConfig struct {
	Tier   string        // Budget the route draws from; defaults to Path
	Path   string        // Path pattern: exact, path.Match glob, or prefix ending in "/"
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

type envConfig struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	DefaultLimit    int           `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"600"`
	DefaultWindow   time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	IdleTTL         time.Duration `env:"RATE_LIMIT_IDLE_TTL" envDefault:"1h"`
	CodeLimit       int           `env:"RATE_LIMIT_CODE_LIMIT" envDefault:"10"`
	Whitelist       []string      `env:"RATE_LIMIT_WHITELIST" envSeparator:","`
	Blacklist       []string      `env:"RATE_LIMIT_BLACKLIST" envSeparator:","`
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() (*Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse rate limit environment: %w", err)
	}
	if !raw.Enabled {
		return &Config{Enabled: false}, nil
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    raw.DefaultLimit,
		DefaultWindow:   raw.DefaultWindow,
		CleanupInterval: raw.CleanupInterval,
		IdleTTL:         raw.IdleTTL,
		Whitelist:       toSet(raw.Whitelist),
		Blacklist:       toSet(raw.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(raw.CodeLimit),
	}, nil
}

// DefaultEndpointConfigs returns the workshop's write tiers. codeLimit bounds
// code-entry attempts per client per minute across all activities.
func DefaultEndpointConfigs(codeLimit int) []EndpointConfig {
	if codeLimit <= 0 {
		codeLimit = 10
	}
	return []EndpointConfig{
		{Tier: TierCodeEntry, Path: "/activities/*/code", Method: "POST", Limit: codeLimit, Window: time.Minute, Burst: max(codeLimit/2, 1)},
		{Tier: TierStep, Path: "/activities/*/step", Method: "POST", Limit: 240, Window: time.Minute, Burst: 30},
		{Tier: TierReset, Path: "/activities/*/reset", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Tier: TierFieldForm, Path: "/activities/*/fields/", Method: "POST", Limit: 240, Window: time.Minute, Burst: 30},
		{Tier: TierFieldAPI, Path: "/api/activities/*/fields/*", Method: "POST", Limit: 600, Window: time.Minute, Burst: 60},
		// page reads fall back to TierPage; /health and /metrics are exempt
	}
}

func (e *EndpointConfig) tier() string {
	if e.Tier != "" {
		return e.Tier
	}
	return e.Path
}

// toSet converts a list of IP addresses into a lookup map.
func toSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
