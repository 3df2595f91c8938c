package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// Generator wraps Genkit text generation with the configured model and
// maps provider failures onto the pipeline's error kinds.
type Generator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	logger      log.Logger
}

// NewGenerator creates a Generator. modelName must be a fully qualified
// Genkit model name such as "googleai/gemini-2.5-flash".
func NewGenerator(g *genkit.Genkit, modelName string, temperature float64, logger log.Logger) *Generator {
	return &Generator{g: g, modelName: modelName, temperature: temperature, logger: logger}
}

// Generate produces a completion for prompt under the given system
// instruction.
func (gen *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gen.g,
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithModelName(gen.modelName),
		ai.WithConfig(map[string]any{"temperature": gen.temperature}),
	)
	if err != nil {
		return "", classifyGenerateError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: model returned empty response", news.ErrGenerationFailed)
	}
	return text, nil
}

// classifyGenerateError maps provider errors onto the generation error
// kinds so callers can branch with errors.Is.
func classifyGenerateError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", news.ErrGenerationTimeout, err)
	case isRateLimited(err):
		return fmt.Errorf("%w: %v", news.ErrGenerationRateLimited, err)
	default:
		return fmt.Errorf("%w: %v", news.ErrGenerationFailed, err)
	}
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}
