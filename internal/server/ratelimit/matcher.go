package ratelimit

import (
	"net/http"
	"path"
	"strings"
)

// unlimited is returned for endpoints that are never rate limited.
var unlimited = EndpointConfig{Tier: TierExempt, Path: "unlimited"}

// ruleSet resolves a request to its endpoint configuration.
type ruleSet struct {
	configs  []EndpointConfig
	fallback EndpointConfig
}

func (rs *ruleSet) match(requestPath, method string) *EndpointConfig {
	if config := MatchEndpoint(requestPath, method, rs.configs); config != nil {
		return config
	}
	return &rs.fallback
}

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Returns nil when nothing matches. Patterns match exactly, as a path.Match glob
// ("/activities/*/code"), or as a prefix when they end with "/" (a "*" segment in a
// prefix matches one segment). Exact patterns win over globs, globs over prefixes.
func MatchEndpoint(requestPath string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == http.MethodGet && (requestPath == "/health" || requestPath == "/metrics") {
		return &unlimited
	}

	var glob, prefix *EndpointConfig
	for i := range configs {
		config := &configs[i]
		if config.Method != method {
			continue
		}
		switch {
		case config.Path == requestPath:
			return config
		case strings.HasSuffix(config.Path, "/"):
			if prefix == nil && hasPatternPrefix(requestPath, config.Path) {
				prefix = config
			}
		case glob == nil:
			if ok, err := path.Match(config.Path, requestPath); err == nil && ok {
				glob = config
			}
		}
	}
	if glob != nil {
		return glob
	}
	return prefix
}

// hasPatternPrefix reports whether the leading segments of p match prefix, where
// prefix segments may be globs. p must have at least one segment past the prefix.
func hasPatternPrefix(p, prefix string) bool {
	want := strings.Split(strings.TrimSuffix(prefix, "/"), "/")
	got := strings.Split(p, "/")
	if len(got) <= len(want) {
		return false
	}
	for i, seg := range want {
		if ok, err := path.Match(seg, got[i]); err != nil || !ok {
			return false
		}
	}
	return true
}
