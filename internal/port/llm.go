package port

import "context"

// Generator produces answer text from a prompt. Failures are reported as
// errors wrapping domain.ErrBackend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
