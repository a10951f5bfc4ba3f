package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/logger"
)

func TestGuard_WrapsFailuresAsTransient(t *testing.T) {
	g := newGuard("test", 100, logger.Discard())

	_, err := g.do(context.Background(), "embed", func() (any, error) {
		return nil, errors.New("quota exceeded")
	})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Contains(t, err.Error(), "embed")
}

func TestGuard_PassesResultThrough(t *testing.T) {
	g := newGuard("test", 100, logger.Discard())

	out, err := g.do(context.Background(), "complete", func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestGuard_OpensAfterRepeatedFailures(t *testing.T) {
	g := newGuard("test", 1000, logger.Discard())
	calls := 0
	fail := func() (any, error) {
		calls++
		return nil, errors.New("boom")
	}

	for i := 0; i < 5; i++ {
		_, _ = g.do(context.Background(), "embed", fail)
	}
	require.Equal(t, 5, calls)

	// The breaker is open now; the call is rejected without reaching fn.
	_, err := g.do(context.Background(), "embed", fail)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, 5, calls)
}

func TestGuard_CancelledContext(t *testing.T) {
	g := newGuard("test", 0.001, logger.Discard())
	// Drain the single burst token.
	_, _ = g.do(context.Background(), "embed", func() (any, error) { return nil, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.do(ctx, "embed", func() (any, error) { return nil, nil })
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}
