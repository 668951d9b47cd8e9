package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/domain"
	"newsrag/internal/logger"
)

type flakyGenerator struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (g *flakyGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	g.calls.Add(1)
	if g.fail.Load() {
		return "", domain.ErrBackend
	}
	return "ok", nil
}

func (g *flakyGenerator) ModelName() string { return "flaky" }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyGenerator{}
	inner.fail.Store(true)
	g := NewBreakerGenerator(inner, 2, 50*time.Millisecond, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Generate(ctx, "sys", "user")
		assert.True(t, errors.Is(err, domain.ErrBackend))
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Generate(ctx, "sys", "user")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackend))
	assert.EqualValues(t, 2, inner.calls.Load(), "open breaker must not reach the backend")

	inner.fail.Store(false)
	time.Sleep(80 * time.Millisecond)

	out, err := g.Generate(ctx, "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "closed", g.State())
}

func TestStaticGenerator(t *testing.T) {
	g := NewStaticGenerator("answer")
	out, err := g.Generate(context.Background(), "sys", "question one")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, []string{"question one"}, g.Prompts())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "sys", "q")
	assert.True(t, errors.Is(err, domain.ErrBackend))
}

func TestFailingGenerator(t *testing.T) {
	_, err := FailingGenerator{}.Generate(context.Background(), "", "")
	assert.True(t, errors.Is(err, domain.ErrBackend))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = FailingGenerator{Block: true}.Generate(ctx, "", "")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOpenAIGeneratorRequiresKey(t *testing.T) {
	t.Setenv("NEWSRAG_TEST_MISSING_KEY", "")
	_, err := NewOpenAIGenerator("NEWSRAG_TEST_MISSING_KEY", "gpt-3.5-turbo", "", 0.1, 800)
	assert.Error(t, err)
}
