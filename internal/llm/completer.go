package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Completer invokes the configured language model with a single prompt
// and returns its raw text output.
type Completer struct {
	g         *genkit.Genkit
	modelName string
}

// NewCompleter creates a Completer bound to the given registered model.
func NewCompleter(g *genkit.Genkit, modelName string) *Completer {
	return &Completer{g: g, modelName: modelName}
}

// Complete runs a single-turn generation with the given sampling
// parameters and returns the trimmed response text.
func (c *Completer) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(temperature),
			MaxOutputTokens: maxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}

	return strings.TrimSpace(resp.Text()), nil
}
