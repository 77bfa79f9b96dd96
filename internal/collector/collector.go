// Package collector reads back the page's self-reported result after a replay
// and pairs it with the ground truth the iteration intended to produce.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/driver"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
)

// ErrResultReadTimeout indicates the page never reported a result within the
// bounded wait. Iteration-scoped: the raw event log is still persisted as
// evidence and the run continues.
var ErrResultReadTimeout = errors.New("timed out waiting for page result")

// Collector polls the result fields of the page under test with a bounded
// wait. It makes no pass/fail judgment; it only produces the observed values
// for offline comparison against the ground truth.
type Collector struct {
	log     *zap.Logger
	timeout time.Duration
	limiter *rate.Limiter
}

// New creates a Collector. timeout bounds the total wait for the page to
// report; pollInterval paces the read attempts.
func New(log *zap.Logger, timeout, pollInterval time.Duration) *Collector {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Collector{
		log:     log.Named("collector"),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(pollInterval), 1),
	}
}

// Collect waits for the page to publish its computed speed/accuracy and
// returns them. A surface failure propagates as-is; an exhausted wait returns
// ErrResultReadTimeout.
func (c *Collector) Collect(ctx context.Context, surface driver.Surface) (driver.ResultFields, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for {
		if err := c.limiter.Wait(waitCtx); err != nil {
			// The limiter refuses once the deadline cannot be met; only a
			// cancelled parent passes through as-is.
			if ctx.Err() != nil {
				return driver.ResultFields{}, ctx.Err()
			}
			return driver.ResultFields{}, fmt.Errorf("%w after %s (last read error: %v)", ErrResultReadTimeout, c.timeout, lastErr)
		}

		fields, err := surface.ReadResultFields(waitCtx)
		if err == nil {
			c.log.Debug("Page reported result",
				zap.Float64("wpm", fields.WPM),
				zap.Float64("accuracy", fields.Accuracy),
			)
			return fields, nil
		}
		if errors.Is(err, driver.ErrSurfaceUnavailable) {
			return driver.ResultFields{}, err
		}
		// Result not rendered yet; keep polling until the deadline.
		lastErr = err
	}
}

// NewRecord assembles the OutcomeRecord for a completed iteration. charCount
// is the phrase length used for the local fallback WPM figure.
func NewRecord(runID string, iteration int, p probe.BehaviorProfile, gt probe.GroundTruth, fields driver.ResultFields, elapsed time.Duration) probe.OutcomeRecord {
	elapsedMs := elapsed.Milliseconds()
	return probe.OutcomeRecord{
		RunID:            runID,
		Iteration:        iteration,
		Profile:          p.Tag,
		GroundTruth:      gt,
		ObservedWPM:      fields.WPM,
		ObservedAccuracy: fields.Accuracy,
		ComputedWPM:      probe.ComputeWPM(len([]rune(gt.Phrase)), elapsedMs),
		ElapsedMs:        elapsedMs,
		Status:           probe.StatusOK,
	}
}

// NewFailedRecord assembles the failure entry for an iteration that did not
// complete. It is distinguishable from a successful record but holds the same
// ground truth so partial runs remain useful evidence.
func NewFailedRecord(runID string, iteration int, p probe.BehaviorProfile, gt probe.GroundTruth, elapsed time.Duration, cause error) probe.OutcomeRecord {
	return probe.OutcomeRecord{
		RunID:       runID,
		Iteration:   iteration,
		Profile:     p.Tag,
		GroundTruth: gt,
		ElapsedMs:   elapsed.Milliseconds(),
		Status:      probe.StatusFailed,
		Error:       cause.Error(),
	}
}
