// Package orchestrator drives the probe run: sequence, replay, collect,
// persist, repeated N times under a single profile. Control is a straight
// linear pipeline; iterations never interleave on the input surface.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/collector"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/config"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/driver"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/rawlog"
)

// SurfaceFactory hands out a clean input surface for each iteration. The
// browser collaborator implements it; the orchestrator owns the returned
// surface exclusively until it calls release.
type SurfaceFactory interface {
	NewSurface(ctx context.Context) (driver.Surface, func(), error)
}

// Store persists the run-level outcome collection. Optional; a nil Store
// leaves the JSON/CSV artifacts as the only output.
type Store interface {
	PersistRun(ctx context.Context, records []probe.OutcomeRecord) error
}

// Orchestrator repeats the sequence->replay->collect cycle and records every
// outcome, failed iterations included.
type Orchestrator struct {
	log       *zap.Logger
	cfg       *config.Config
	driver    *driver.Driver
	collector *collector.Collector
	raw       *rawlog.Writer
	store     Store
	rng       *rand.Rand
}

// New assembles an orchestrator. seed 0 derives the RNG from the clock;
// any other value makes the whole run reproducible.
func New(log *zap.Logger, cfg *config.Config, drv *driver.Driver, col *collector.Collector, raw *rawlog.Writer, store Store) *Orchestrator {
	seed := cfg.Probe.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Orchestrator{
		log:       log.Named("orchestrator"),
		cfg:       cfg,
		driver:    drv,
		collector: col,
		raw:       raw,
		store:     store,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Run executes iterations sequentially under one fixed profile. Bad profile
// parameters abort before the first iteration; a failed iteration is logged,
// recorded and skipped past. An external stop signal is honored between
// iterations, never mid-replay.
func (o *Orchestrator) Run(ctx context.Context, factory SurfaceFactory, profile probe.BehaviorProfile, iterations int) ([]probe.OutcomeRecord, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", probe.ErrInvalidProfile, iterations)
	}

	runID := uuid.New().String()
	o.log.Info("Starting probe run",
		zap.String("runID", runID),
		zap.String("profile", string(profile.Tag)),
		zap.Int("iterations", iterations),
	)

	records := make([]probe.OutcomeRecord, 0, iterations)
	for i := 1; i <= iterations; i++ {
		if err := ctx.Err(); err != nil {
			o.log.Warn("Run stopped between iterations",
				zap.String("runID", runID),
				zap.Int("completed", len(records)),
			)
			return records, err
		}

		rec := o.runIteration(ctx, factory, profile, runID, i)
		records = append(records, rec)

		if err := o.raw.AppendSummary(rec); err != nil {
			o.log.Warn("Failed to append run summary", zap.Error(err))
		}
	}

	if o.store != nil {
		if err := o.store.PersistRun(ctx, records); err != nil {
			o.log.Warn("Failed to persist outcomes to store", zap.Error(err))
		}
	}

	o.log.Info("Probe run finished",
		zap.String("runID", runID),
		zap.Int("records", len(records)),
		zap.Int("failed", countFailed(records)),
	)
	return records, nil
}

// runIteration performs one full cycle against a fresh surface. Every exit
// path produces a record; failures carry the cause and whatever ground truth
// was established before the failure.
func (o *Orchestrator) runIteration(ctx context.Context, factory SurfaceFactory, profile probe.BehaviorProfile, runID string, iteration int) probe.OutcomeRecord {
	started := time.Now()
	ilog := o.log.With(zap.String("runID", runID), zap.Int("iteration", iteration))

	// The per-iteration timeout converts a hung replay or result wait into a
	// failed-iteration record instead of wedging the run.
	iterCtx, cancel := context.WithTimeout(ctx, o.cfg.Probe.IterationTimeout)
	defer cancel()

	surface, release, err := factory.NewSurface(iterCtx)
	if err != nil {
		ilog.Error("Surface acquisition failed", zap.Error(err))
		return o.finishFailed(collector.NewFailedRecord(runID, iteration, profile, probe.GroundTruth{}, time.Since(started), err), nil, started)
	}
	defer release()

	phrase := o.cfg.Probe.Phrase
	if phrase == "" {
		phrase, err = surface.ReadTargetText(iterCtx)
		if err != nil {
			ilog.Error("Could not read target phrase", zap.Error(err))
			return o.finishFailed(collector.NewFailedRecord(runID, iteration, profile, probe.GroundTruth{}, time.Since(started), err), nil, started)
		}
	}

	events, gt, err := probe.BuildSequence(phrase, profile, o.rng)
	if err != nil {
		ilog.Error("Sequence construction failed", zap.Error(err))
		return o.finishFailed(collector.NewFailedRecord(runID, iteration, profile, gt, time.Since(started), err), events, started)
	}

	ilog.Info("Replaying sequence",
		zap.Int("events", len(events)),
		zap.Int("phrase_chars", len([]rune(phrase))),
		zap.Int64("intended_duration_ms", gt.IntendedDurationMs),
		zap.Int("intended_errors", gt.IntendedErrorCount),
	)
	ilog.Debug("Sequence detail", zap.String("sequence", probe.String(events)))

	elapsed, err := o.driver.Replay(iterCtx, surface, events)
	if err != nil {
		ilog.Error("Replay failed", zap.Error(err))
		return o.finishFailed(collector.NewFailedRecord(runID, iteration, profile, gt, elapsed, err), events, started)
	}

	fields, err := o.collector.Collect(iterCtx, surface)
	if err != nil {
		ilog.Error("Result collection failed", zap.Error(err))
		return o.finishFailed(collector.NewFailedRecord(runID, iteration, profile, gt, elapsed, err), events, started)
	}

	rec := collector.NewRecord(runID, iteration, profile, gt, fields, elapsed)
	rec.RawLogPath = o.persistRaw(rec, events, started)
	ilog.Info("Iteration complete",
		zap.Float64("observed_wpm", rec.ObservedWPM),
		zap.Float64("observed_accuracy", rec.ObservedAccuracy),
		zap.Float64("computed_wpm", rec.ComputedWPM),
	)
	return rec
}

// finishFailed persists the raw evidence for a failed iteration and returns
// its record. The run continues; partial results are still evidence.
func (o *Orchestrator) finishFailed(rec probe.OutcomeRecord, events []probe.KeyEvent, started time.Time) probe.OutcomeRecord {
	rec.RawLogPath = o.persistRaw(rec, events, started)
	return rec
}

func (o *Orchestrator) persistRaw(rec probe.OutcomeRecord, events []probe.KeyEvent, started time.Time) string {
	path, err := o.raw.WriteIteration(rawlog.IterationLog{
		Meta: rawlog.Meta{
			RunID:     rec.RunID,
			Iteration: rec.Iteration,
			Profile:   rec.Profile,
			StartTime: started,
			EndTime:   time.Now(),
		},
		KeystrokeLog:     events,
		Outcome:          rec,
		TargetTextSample: rec.GroundTruth.Phrase,
	})
	if err != nil {
		o.log.Warn("Failed to persist raw log", zap.Error(err))
		return ""
	}
	return path
}

func countFailed(records []probe.OutcomeRecord) int {
	n := 0
	for _, r := range records {
		if r.Status == probe.StatusFailed {
			n++
		}
	}
	return n
}
