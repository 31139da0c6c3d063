package connector

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/shadowatlas/discovery-core/internal/circuitbreaker"
)

// Guard composes a per-platform circuit breaker with a token-bucket rate
// limiter, so an adapter's outbound calls honor both a platform-wide
// failure threshold and its own rate-limit budget without adapters having
// to reimplement either. Grounded on internal/circuitbreaker/breaker.go
// (trip/half-open/closed state machine, reused directly) composed with
// golang.org/x/time/rate, promoted from an indirect pack dependency (via
// Aureuma-si) to direct since the Connector Framework exercises it itself.
type Guard struct {
	breaker *circuitbreaker.CircuitBreaker
	limiter *rate.Limiter
	platform Platform
}

// NewGuard builds a Guard for platform allowing ratePerSecond calls with a
// burst of burst, backed by a circuit breaker using cfg (or a sensible
// per-platform default if cfg is nil).
func NewGuard(platform Platform, ratePerSecond float64, burst int, cfg *circuitbreaker.Config) *Guard {
	if cfg == nil {
		cfg = circuitbreaker.DefaultConfig(string(platform))
	}
	return &Guard{
		breaker:  circuitbreaker.New(cfg),
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		platform: platform,
	}
}

// Do waits for rate-limiter capacity, then executes fn through the circuit
// breaker. A circuit-open rejection surfaces as TransientPlatformError so
// callers can treat it uniformly with other retryable failures.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("connector: rate limiter wait: %w", err)
	}

	_, err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyRequests {
		return &TransientPlatformError{Platform: g.platform, Detail: err.Error()}
	}
	return err
}

// Backoff returns an exponential backoff with jitter for attempt (1-based),
// used when a platform doesn't supply a retry-after header. The exponential
// delay is capped at max; jitter of up to a quarter of that delay is then
// added, so the result can reach 1.25*max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	return d + jitter
}
