package booking

import (
	"context"
	"errors"
	"time"

	"wellnest/config"

	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
)

// RetryPolicy bounds every store call made by the booking engine.
type RetryPolicy struct {
	MaxAttempts int
	// Timeout applies to each attempt separately.
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// RetryPolicyFromConfig reads the retry settings from cfg.
func RetryPolicyFromConfig(cfg config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Timeout:     cfg.StoreTimeout(),
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
	}
}

func (p RetryPolicy) backoff() *gax.Backoff {
	initial := p.BaseDelay
	if initial <= 0 {
		// gax substitutes one second for a zero initial delay.
		initial = time.Millisecond
	}
	max := p.MaxDelay
	if max < initial {
		max = initial
	}
	return &gax.Backoff{Initial: initial, Max: max, Multiplier: 2}
}

// Do runs fn until it succeeds, fails permanently, the attempts are used up
// or ctx ends. Pauses use exponential backoff with full jitter.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bo := p.backoff()

	var err error
	for attempt := 1; ; attempt++ {
		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return parentDone(ctx, err)
		}
		if isPermanent(err) || attempt >= attempts {
			return err
		}

		pause := bo.Pause()
		logger.Debug("Retrying store call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("pause", pause),
			zap.Error(err))
		if sleepErr := gax.Sleep(ctx, pause); sleepErr != nil {
			return parentDone(ctx, err)
		}
	}
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// parentDone reports a cancelled caller as ErrAborted. An expired caller
// deadline keeps the last attempt error so it surfaces as transient.
func parentDone(ctx context.Context, last error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return errors.Join(ErrAborted, ctx.Err())
	}
	return errors.Join(last, ctx.Err())
}
