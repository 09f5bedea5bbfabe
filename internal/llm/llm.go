// Package llm adapts the configured language-model provider behind
// small embedding and completion interfaces. The provider is selected
// once at process start; core logic never touches a concrete vendor SDK.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/nexusflow/nexusflow/internal/config"
)

var (
	// ErrUnavailable indicates the provider has no configured credential.
	ErrUnavailable = errors.New("llm provider unavailable")

	// ErrProvider wraps upstream transport or parsing failures.
	ErrProvider = errors.New("llm provider error")
)

// Provider bundles the Genkit instance with the resolved embedder and
// model name for the configured vendor.
type Provider struct {
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	ModelName string
}

// Init initializes Genkit with the provider selected by cfg.Provider
// and resolves its embedder. Credential absence fails fast with
// ErrUnavailable instead of surfacing as zero vectors later.
func Init(ctx context.Context, cfg *config.Config) (*Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrUnavailable)
		}
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, fmt.Errorf("%w: initializing genkit with openai plugin", ErrProvider)
		}
		embedder := genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		if embedder == nil {
			return nil, fmt.Errorf("%w: embedder %q not registered by openai plugin", ErrUnavailable, cfg.EmbedderModel)
		}
		return &Provider{
			Genkit:    g,
			Embedder:  embedder,
			ModelName: "openai/" + cfg.ModelName,
		}, nil

	case config.ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrUnavailable)
		}
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, fmt.Errorf("%w: initializing genkit with googleai plugin", ErrProvider)
		}
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, fmt.Errorf("%w: embedder %q not found", ErrUnavailable, cfg.EmbedderModel)
		}
		return &Provider{
			Genkit:    g,
			Embedder:  embedder,
			ModelName: "googleai/" + cfg.ModelName,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, cfg.Provider)
	}
}
