package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snapceipt/snapceipt/internal/receipt"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// Policy bounds the retry loop shared by the extraction providers.
// Zero values fall back to the defaults; Sleep is injectable so tests
// can observe the computed delays.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

// execute runs fn up to MaxAttempts times. Only transient failures are
// retried; the delay before attempt n+1 is BaseDelay doubled per
// attempt already made. Exhaustion surfaces as ErrUnavailable.
func (p Policy) execute(ctx context.Context, fn func(context.Context) (*receipt.Normalized, error)) (*receipt.Normalized, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = defaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || !isTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := base << (attempt - 1)
		slog.Warn("Extraction attempt failed, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		sleep(delay)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
