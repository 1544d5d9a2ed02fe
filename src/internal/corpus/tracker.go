package corpus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VectorBits/pocshift/src/internal/logger"
)

const (
	DefaultPollInterval = 5 * time.Minute
	DefaultLease        = 24 * time.Hour
)

// Tracker guards the matching sweep with the matching_running flag. The flag
// holds the unix time of the acquire; zero means idle. Callers wait for the
// flag instead of failing, and a flag older than the lease is taken over.
type Tracker struct {
	repo     Repository
	interval time.Duration
	maxWait  time.Duration
	lease    time.Duration
	now      func() time.Time

	mu   sync.Mutex
	held int
}

func NewTracker(repo Repository, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{repo: repo, interval: interval, maxWait: 4 * interval, lease: DefaultLease, now: time.Now}
}

// WithLease sets how long a held flag is trusted; 0 disables takeover.
func (t *Tracker) WithLease(d time.Duration) *Tracker {
	t.lease = d
	return t
}

// Acquire blocks until the flag flips from idle to running or ctx ends.
func (t *Tracker) Acquire(ctx context.Context) error {
	wait := t.interval
	for {
		stamp := int(t.now().Unix())
		ok, err := t.repo.CompareAndSetFlag(ctx, FlagMatchingRunning, 0, stamp)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", FlagMatchingRunning, err)
		}
		if !ok {
			ok, err = t.takeOver(ctx, stamp)
			if err != nil {
				return err
			}
		}
		if ok {
			t.mu.Lock()
			t.held = stamp
			t.mu.Unlock()
			return nil
		}
		logger.Info("⏳ matching is running, retry in %s", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > t.maxWait {
			wait = t.maxWait
		}
	}
}

// takeOver replaces a flag whose holder went away without releasing it.
func (t *Tracker) takeOver(ctx context.Context, stamp int) (bool, error) {
	if t.lease <= 0 {
		return false, nil
	}
	cur, err := t.repo.Flag(ctx, FlagMatchingRunning)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", FlagMatchingRunning, err)
	}
	since := time.Unix(int64(cur), 0)
	if cur == 0 || t.now().Sub(since) <= t.lease {
		return false, nil
	}
	ok, err := t.repo.CompareAndSetFlag(ctx, FlagMatchingRunning, cur, stamp)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", FlagMatchingRunning, err)
	}
	if ok {
		logger.Warn("%s held since %s, lease expired, taking over", FlagMatchingRunning, since.Format(time.RFC3339))
	}
	return ok, nil
}

func (t *Tracker) Release(ctx context.Context) error {
	t.mu.Lock()
	held := t.held
	t.held = 0
	t.mu.Unlock()

	ok := false
	var err error
	if held != 0 {
		ok, err = t.repo.CompareAndSetFlag(ctx, FlagMatchingRunning, held, 0)
		if err != nil {
			return fmt.Errorf("release %s: %w", FlagMatchingRunning, err)
		}
	}
	if !ok {
		logger.Warn("%s was not held", FlagMatchingRunning)
	}
	return nil
}

// Unlock clears the flag whoever holds it. It reports whether a holder was
// cleared.
func (t *Tracker) Unlock(ctx context.Context) (bool, error) {
	cur, err := t.repo.Flag(ctx, FlagMatchingRunning)
	if err != nil || cur == 0 {
		return false, err
	}
	return t.repo.CompareAndSetFlag(ctx, FlagMatchingRunning, cur, 0)
}

// Running reports whether a sweep currently holds the flag.
func (t *Tracker) Running(ctx context.Context) (bool, error) {
	cur, err := t.repo.Flag(ctx, FlagMatchingRunning)
	return cur != 0, err
}
