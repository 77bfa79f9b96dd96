// Package driver replays timed keystroke sequences against a live text-input
// surface. The surface itself is an abstract capability supplied by the
// browser collaborator; the driver never manages browser or session lifecycle.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
)

// ErrSurfaceUnavailable indicates the input surface became invalid mid-replay
// (page navigated away, element detached). The iteration that hit it is
// reported as failed; an interrupted replay is never silently resumed.
var ErrSurfaceUnavailable = errors.New("input surface unavailable")

// ResultFields carries the speed and accuracy values as reported by the page
// under test.
type ResultFields struct {
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

// Surface is the capability handle exposed by the external browser
// collaborator. Implementations return errors wrapping ErrSurfaceUnavailable
// when the underlying page or element is gone.
type Surface interface {
	// Focus gives the text input keyboard focus.
	Focus(ctx context.Context) error
	// DispatchKey sends one press or backspace to the focused input.
	DispatchKey(ctx context.Context, ev probe.KeyEvent) error
	// ReadValue returns the input's current visible text.
	ReadValue(ctx context.Context) (string, error)
	// ReadTargetText returns the phrase the page is asking to be typed.
	ReadTargetText(ctx context.Context) (string, error)
	// ReadResultFields returns the page's own computed speed/accuracy, once
	// the page has produced them.
	ReadResultFields(ctx context.Context) (ResultFields, error)
}

// Driver executes keystroke sequences strictly in order, honoring each
// event's scheduled delay as a cooperative, context-aware wait.
type Driver struct {
	log *zap.Logger

	// sleep and now are swapped out in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a Driver.
func New(log *zap.Logger) *Driver {
	return &Driver{
		log:   log.Named("driver"),
		sleep: sleepCtx,
		now:   time.Now,
	}
}

// Replay focuses the surface, then dispatches every event in order after
// waiting its scheduled delay. Each successfully dispatched event is stamped
// in place with its observed offset from replay start; the dispatch latency
// those offsets accumulate over the schedule is exactly the timing the page's
// defenses get to inspect. It returns the wall-clock elapsed time. There is
// no partial-event retry: the first failure aborts the replay and the caller
// decides what to do with the iteration.
func (d *Driver) Replay(ctx context.Context, surface Surface, events []probe.KeyEvent) (time.Duration, error) {
	start := d.now()

	if err := surface.Focus(ctx); err != nil {
		return d.now().Sub(start), fmt.Errorf("focus input surface: %w", err)
	}

	for i := range events {
		ev := events[i]
		if delay := time.Duration(ev.ScheduledDelayMs) * time.Millisecond; delay > 0 {
			if err := d.sleep(ctx, delay); err != nil {
				return d.now().Sub(start), fmt.Errorf("replay interrupted before event %d: %w", i, err)
			}
		}
		if err := surface.DispatchKey(ctx, ev); err != nil {
			return d.now().Sub(start), fmt.Errorf("dispatch event %d (%s %q): %w", i, ev.Action, ev.Key, err)
		}
		events[i].DispatchedAtMs = d.now().Sub(start).Milliseconds()
	}

	elapsed := d.now().Sub(start)
	d.log.Debug("Replay complete",
		zap.Int("events", len(events)),
		zap.Duration("elapsed", elapsed),
	)
	return elapsed, nil
}

// sleepCtx pauses for d, respecting context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
