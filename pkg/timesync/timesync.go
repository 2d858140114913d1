// Package timesync waits for the system clock to become trustworthy.
//
// Boards without a battery-backed RTC boot at the epoch and only learn
// the wall time from the network. Session start times taken before that
// are meaningless, so the daemon waits here before opening a session.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// PollInterval is how often the clock is checked
const PollInterval = time.Second

// DefaultMinValidTime is the earliest wall time treated as synchronized
var DefaultMinValidTime = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrSyncTimeout is returned when the clock is still invalid at the deadline
var ErrSyncTimeout = errors.New("timed out waiting for clock sync")

// Synced reports whether clk reads after minValid
func Synced(clk clock.Clock, minValid time.Time) bool {
	return clk.Now().After(minValid)
}

// WaitForSync blocks until clk reads after minValid. A non-positive
// timeout waits until ctx is done.
func WaitForSync(ctx context.Context, clk clock.Clock, minValid time.Time, timeout time.Duration, logger zerolog.Logger) error {
	if Synced(clk, minValid) {
		return nil
	}

	logger.Info().
		Time("now", clk.Now()).
		Time("min_valid", minValid).
		Dur("timeout", timeout).
		Msg("Waiting for clock sync")

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := clk.Timer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := clk.Ticker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			if Synced(clk, minValid) {
				return nil
			}
			return fmt.Errorf("%w after %s", ErrSyncTimeout, timeout)
		case <-ticker.C:
			if Synced(clk, minValid) {
				logger.Info().Time("now", clk.Now()).Msg("Clock synchronized")
				return nil
			}
		}
	}
}
