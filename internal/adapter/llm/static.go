package llm

import (
	"context"
	"fmt"
	"sync"

	"newsrag/internal/domain"
)

// StaticGenerator returns a fixed answer and records the prompts it saw.
type StaticGenerator struct {
	Answer string

	mu      sync.Mutex
	prompts []string
}

func NewStaticGenerator(answer string) *StaticGenerator {
	return &StaticGenerator{Answer: answer}
}

func (g *StaticGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBackend, err)
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, userPrompt)
	g.mu.Unlock()
	return g.Answer, nil
}

func (g *StaticGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func (g *StaticGenerator) ModelName() string {
	return "static"
}

// FailingGenerator always fails. With Block set it instead waits for the
// context to end, simulating a hung backend.
type FailingGenerator struct {
	Err   error
	Block bool
}

func (g FailingGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.Block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", domain.ErrBackend, ctx.Err())
	}
	err := g.Err
	if err == nil {
		err = fmt.Errorf("backend unavailable")
	}
	return "", fmt.Errorf("%w: %w", domain.ErrBackend, err)
}

func (g FailingGenerator) ModelName() string {
	return "failing"
}
