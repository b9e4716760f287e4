// Package reasoner provides the external LLM client used to resolve
// ambiguous threat contacts that the deterministic rules abstain on.
package reasoner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/internal/config"
	"github.com/xkilldash9x/tifda/internal/threat"
)

// New constructs a threat.Reasoner for the configured provider. An empty
// provider disables external reasoning entirely; callers pass the nil
// reasoner through and the evaluator falls back to its conservative verdict.
func New(cfg config.ReasonerConfig, logger *zap.Logger) (threat.Reasoner, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "gemini":
		return NewGeminiReasoner(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported reasoner provider: %q", cfg.Provider)
	}
}
