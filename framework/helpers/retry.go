package helpers

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned by RetryWithAttempts when no attempt reported completion.
var ErrAttemptsExhausted = errors.New("maximum number of attempts exhausted")

// RetryWithAttempts calls attemptFn up to maxAttempts times, waiting interval between
// consecutive calls. Attempts are numbered from 1.
//
// If attemptFn returns done=true, RetryWithAttempts returns nil. If it returns an error, that
// error is returned immediately without further attempts. If every attempt completes without
// either, it returns ErrAttemptsExhausted. Cancelling ctx interrupts the wait and returns
// ctx.Err().
func RetryWithAttempts(
	ctx context.Context,
	maxAttempts int,
	interval time.Duration,
	attemptFn func(attempt int) (done bool, err error),
) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := Sleep(ctx, interval); err != nil {
				return err
			}
		}
		done, err := attemptFn(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrAttemptsExhausted
}

// Sleep waits for the duration to elapse or for ctx to be done, whichever comes first. It
// returns ctx.Err() in the latter case.
func Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
