package observability

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger for the given mode. "prod"/"production" selects
// JSON output at info level; anything else selects the console development config.
func NewLogger(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}
