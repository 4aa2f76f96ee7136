package retry

import (
	"context"
	"time"

	"github.com/zhaoqi/breadth/pkg/logger"
)

// Policy is the single retry policy used by every provider call. It
// retries with exponential backoff up to MaxAttempts. A reply recognised
// by IsRateLimited triggers a fixed Cooldown pause and does not consume
// an attempt, because the provider will keep refusing until the minute
// window rolls over regardless of how many retries are left.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Cooldown      time.Duration
	IsRateLimited func(error) bool

	// Sleep is swappable in tests; nil means context-aware time sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used when the caller supplies nothing.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Cooldown:     60 * time.Second,
	}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, log *logger.Logger, op string, fn func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; {
		err = fn()
		if err == nil {
			return nil
		}

		if p.IsRateLimited != nil && p.IsRateLimited(err) {
			if log != nil {
				log.WithFields(map[string]interface{}{
					"op":       op,
					"cooldown": p.Cooldown,
				}).Warn("rate limited, cooling down")
			}
			if sleepErr := p.sleep(ctx, p.Cooldown); sleepErr != nil {
				return sleepErr
			}
			// Attempt not consumed.
			continue
		}

		if attempt == maxAttempts {
			break
		}

		if log != nil {
			log.WithFields(map[string]interface{}{
				"op":      op,
				"attempt": attempt,
				"delay":   delay,
				"error":   err.Error(),
			}).Warn("retrying")
		}

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		attempt++
	}

	return err
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
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
