package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// guard throttles and circuit-breaks calls to the AI provider. Every failure
// that leaves it is a core.TransientError.
type guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, perSecond float64, log *slog.Logger) *guard {
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &guard{
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (g *guard) do(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, core.Transient(op, err)
	}
	out, err := g.breaker.Execute(fn)
	if err != nil {
		return nil, core.Transient(op, err)
	}
	return out, nil
}
