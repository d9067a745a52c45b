package resilience

import (
	"context"
	"errors"
	"log/slog"

	"github.com/inkbound/redline/pkg/provider/checker"
)

// GuardedChecker wraps a [checker.Checker] in a [Breaker]. While the
// breaker is open, Check reports no issues instead of an error, so one
// broken checker never stalls the whole feedback sweep.
type GuardedChecker struct {
	inner   checker.Checker
	breaker *Breaker
}

var _ checker.Checker = (*GuardedChecker)(nil)

// Guard wraps c with a circuit breaker named after the checker.
func Guard(c checker.Checker, opts ...BreakerOption) *GuardedChecker {
	return &GuardedChecker{
		inner:   c,
		breaker: NewBreaker(c.Name(), opts...),
	}
}

// Check implements checker.Checker. Context cancellation passes through
// without tripping the breaker — the checker did nothing wrong.
func (g *GuardedChecker) Check(ctx context.Context, text string) ([]checker.Issue, error) {
	var issues []checker.Issue
	err := g.breaker.Execute(func() error {
		var innerErr error
		issues, innerErr = g.inner.Check(ctx, text)
		if innerErr != nil && ctx.Err() != nil {
			return nil
		}
		return innerErr
	})

	if errors.Is(err, ErrOpen) {
		slog.Debug("checker suspended by breaker", "checker", g.inner.Name())
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return issues, nil
}

// Name implements checker.Checker.
func (g *GuardedChecker) Name() string { return g.inner.Name() }

// State exposes the underlying breaker state for status reporting.
func (g *GuardedChecker) State() State { return g.breaker.State() }
