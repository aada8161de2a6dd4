package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/pagewire/pagewire/internal/errors"
)

// Logger is the logging surface the executor needs. *zap.Logger and the
// gofulmen loggers satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Observer receives retry events, typically to feed metrics.
type Observer interface {
	RateLimitObserved(state State)
	RetryScheduled(kind apperrors.Kind, delay time.Duration)
	RetriesExhausted(reason string)
}

type nopObserver struct{}

func (nopObserver) RateLimitObserved(State) {}
func (nopObserver) RetryScheduled(apperrors.Kind, time.Duration) {}
func (nopObserver) RetriesExhausted(string) {}

// Sleeper suspends the caller for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext waits on a timer and ctx, whichever finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor runs operations under the retry policy of its calculator. It keeps
// no per-call state and is safe for concurrent use.
type Executor struct {
	calc       *Calculator
	sleep      Sleeper
	observer   Observer
	logger     Logger
	tracker    *Tracker
	trackerKey string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithLogger(l Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracker shares rate-limit state for endpoint through t. Calls wait out
// any backoff another call recorded before they are sent.
func WithTracker(t *Tracker, endpoint string) ExecutorOption {
	return func(e *Executor) {
		e.tracker = t
		e.trackerKey = endpoint
	}
}

// NewExecutor builds an executor around calc.
func NewExecutor(calc *Calculator, opts ...ExecutorOption) *Executor {
	if calc == nil {
		calc = NewCalculator(BalancedConfig())
	}
	e := &Executor{
		calc:     calc,
		sleep:    SleepContext,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Config returns the retry policy in force.
func (e *Executor) Config() Config {
	return e.calc.Config()
}

// Tracker returns the shared tracker and its endpoint key, if any.
func (e *Executor) Tracker() (*Tracker, string) {
	return e.tracker, e.trackerKey
}

// Execute runs op under the retry policy.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op under e's retry policy and returns its value. Throttled
// failures (and, with RetryServerErrors, every retryable failure) are retried
// after the delay the calculator decides; anything else is returned as is.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if e == nil {
		return op(ctx)
	}

	cfg := e.calc.Config()
	attempt := InitialAttempt()
	var lastErr error

	for attempt.Number <= cfg.MaxRetries+1 {
		if err := e.awaitShared(ctx, attempt); err != nil {
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !e.retries(err) {
			return zero, err
		}

		state := FromError(err)
		if state != nil {
			e.observer.RateLimitObserved(*state)
		}

		decision := e.calc.ShouldRetry(attempt, err, state)
		switch decision.Kind {
		case DecisionWait:
			if attempt.Number >= cfg.MaxRetries {
				return zero, e.exhausted(attempt, err, "maximum retries exceeded")
			}
			kind := apperrors.KindOf(err)
			e.recordThrottle(ctx, kind, decision.Delay)
			e.observer.RetryScheduled(kind, decision.Delay)
			e.logger.Debug("retrying request",
				zap.String("kind", kind.String()),
				zap.Int("attempt", attempt.Number+1),
				zap.Duration("delay", decision.Delay),
				zap.String("reason", decision.Reason),
			)
			if err := e.sleep(ctx, decision.Delay); err != nil {
				return zero, &apperrors.CanceledError{Attempts: attempt.Number + 1, Err: err}
			}
			attempt = attempt.Next(err, decision.Delay)
		case DecisionReject:
			return zero, e.exhausted(attempt, err, decision.Reason)
		case DecisionProceed:
			return zero, err
		}
	}

	return zero, e.exhausted(attempt, lastErr, "max retries exceeded")
}

func (e *Executor) retries(err error) bool {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindThrottled {
		return true
	}
	return e.calc.Config().RetryServerErrors && kind.Retryable()
}

func (e *Executor) exhausted(attempt Attempt, last error, reason string) error {
	e.observer.RetriesExhausted(reason)
	e.logger.Warn("giving up on request",
		zap.Int("attempts", attempt.Number+1),
		zap.Duration("total_backoff", attempt.CumulativeDelay),
		zap.String("reason", reason),
		zap.Error(last),
	)
	return &apperrors.RetriesExhaustedError{
		Reason:       reason,
		Attempts:     attempt.Number + 1,
		TotalBackoff: attempt.CumulativeDelay,
		Last:         last,
	}
}

// awaitShared waits out a backoff or spent window recorded by other calls.
func (e *Executor) awaitShared(ctx context.Context, attempt Attempt) error {
	if e.tracker == nil {
		return nil
	}
	allowed, wait, err := e.tracker.Allow(ctx, e.trackerKey)
	if err != nil {
		e.logger.Warn("rate limit tracker unavailable", zap.String("endpoint", e.trackerKey), zap.Error(err))
		return nil
	}
	if allowed || wait <= 0 {
		return nil
	}

	e.logger.Debug("waiting for shared rate limit",
		zap.String("endpoint", e.trackerKey),
		zap.Duration("wait", wait),
	)
	if err := e.sleep(ctx, wait); err != nil {
		return &apperrors.CanceledError{Attempts: attempt.Number, Err: err}
	}
	return nil
}

func (e *Executor) recordThrottle(ctx context.Context, kind apperrors.Kind, delay time.Duration) {
	if e.tracker == nil || kind != apperrors.KindThrottled {
		return
	}
	if err := e.tracker.Record429(ctx, e.trackerKey, delay); err != nil {
		e.logger.Warn("record throttle failed", zap.String("endpoint", e.trackerKey), zap.Error(err))
	}
}
