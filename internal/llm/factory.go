package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/chatkeeper/internal/config"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// New builds the configured provider wrapped with the per-call timeout.
func New(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (Client, error) {
	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case ProviderGemini:
		client, err = NewGemini(ctx, cfg.Gemini, cfg, log)
	case ProviderOpenAI:
		client, err = NewOpenAI(cfg.OpenAI, cfg, log)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(client, cfg.Timeout), nil
}
