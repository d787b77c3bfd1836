package adapter

import (
	"context"
	"fmt"
)

// Adapter is the transport contract for model providers. Specialists
// use it for text enrichment only; consultation semantics never depend
// on a provider being reachable.
type Adapter interface {
	// Generate sends a prompt to the model and returns the completion.
	Generate(ctx context.Context, model string, prompt string) (*Completion, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// New builds the named provider adapter.
func New(provider, apiKey string) (Adapter, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicAdapter(apiKey)
	case "openai":
		return NewOpenAIAdapter(apiKey)
	case "deepseek":
		return NewDeepSeekAdapter(apiKey)
	case "google":
		return NewGoogleAdapter(apiKey)
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown adapter provider %q", provider)
	}
}
