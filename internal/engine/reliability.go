package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/spaceai-taskgate/internal/connectors"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"golang.org/x/time/rate"
)

const runnerBreakerName = "browser-runner"

// ReliabilityWrapper защищает runner: rate limiter -> circuit breaker -> retry с бэкоффом.
type ReliabilityWrapper struct {
	next        Executor
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	attempts    uint
	callTimeout time.Duration
	metrics     *Metrics
}

func NewReliabilityWrapper(next Executor, cfg infra.EngineConfig, metrics *Metrics) *ReliabilityWrapper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	threshold := cfg.CBFailureThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        runnerBreakerName,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		next:        next,
		cb:          cb,
		limiter:     rate.NewLimiter(limit, burst),
		attempts:    attempts,
		callTimeout: cfg.CallTimeout,
		metrics:     metrics,
	}
}

func (w *ReliabilityWrapper) Execute(ctx context.Context, task domain.TaskRequest) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("rate_limit").Inc()
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			// Повторяем только то, что runner точно не исполнял: задача могла уже стартовать.
			retry.RetryIf(connectors.Retryable),
			retry.LastErrorOnly(true),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Runner сам сказал, сколько ждать
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			callCtx, cancel := w.withCallTimeout(ctx)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Execute(callCtx, task)
			return callErr
		})
		return finalData, retryErr
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			w.metrics.ErrorTotal.WithLabelValues("circuit_open").Inc()
		}
		return nil, err
	}
	return finalData, nil
}

func (w *ReliabilityWrapper) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.callTimeout)
}

// BreakerState — для /health и тестов.
func (w *ReliabilityWrapper) BreakerState() gobreaker.State {
	return w.cb.State()
}
