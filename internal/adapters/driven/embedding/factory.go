// Package embedding selects and validates the configured embedding provider.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/DanielTromp/atlas/internal/adapters/driven/embedding/ollama"
	"github.com/DanielTromp/atlas/internal/adapters/driven/embedding/openai"
	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// NewService creates the embedding service selected by settings.
// Returns nil when no provider is configured; search then runs keyword-only.
func NewService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.EmbeddingProviderOllama:
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: settings.Dimensions,
		}), nil

	case domain.EmbeddingProviderOpenAI:
		svc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: settings.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// Validate creates the configured service and pings it.
// An unconfigured provider has nothing to validate and returns nil.
func Validate(ctx context.Context, settings *domain.EmbeddingSettings) error {
	svc, err := NewService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", settings.Provider, err)
	}
	return nil
}
