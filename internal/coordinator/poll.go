package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when MaxAttempts checks ran without a terminal answer.
var ErrPollExhausted = errors.New("poll attempts exhausted")

const defaultPollAttempts = 30

// PollConfig bounds a status polling loop. Multiplier > 1 gives exponential
// backoff capped at MaxInterval; otherwise the interval is fixed. A zero
// MaxAttempts means 30.
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Check reports whether the awaited state was reached. A non-nil error stops polling.
type Check func(ctx context.Context) (done bool, err error)

// Poll calls check until it reports done, returns an error, the context is
// cancelled or MaxAttempts is reached.
func Poll(ctx context.Context, cfg PollConfig, check Check) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	interval := cfg.Interval
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		interval = next(interval, cfg)
	}
	return fmt.Errorf("%w after %d checks", ErrPollExhausted, attempts)
}

func next(interval time.Duration, cfg PollConfig) time.Duration {
	if cfg.Multiplier <= 1 {
		return interval
	}
	n := time.Duration(float64(interval) * cfg.Multiplier)
	if cfg.MaxInterval > 0 && n > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return n
}
