package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/collector"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/config"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/driver"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/rawlog"
)

// fakeSurface is a fully in-memory stand-in for a live page: keystrokes apply
// press/backspace semantics and the result fields are available immediately.
type fakeSurface struct {
	mu         sync.Mutex
	dispatched []probe.KeyEvent
	target     string
	fields     driver.ResultFields
	resultErr  error
}

func (s *fakeSurface) Focus(ctx context.Context) error { return nil }

func (s *fakeSurface) DispatchKey(ctx context.Context, ev probe.KeyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, ev)
	return nil
}

func (s *fakeSurface) ReadValue(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return probe.SimulateReplay(s.dispatched), nil
}

func (s *fakeSurface) ReadTargetText(ctx context.Context) (string, error) {
	return s.target, nil
}

func (s *fakeSurface) ReadResultFields(ctx context.Context) (driver.ResultFields, error) {
	if s.resultErr != nil {
		return driver.ResultFields{}, s.resultErr
	}
	return s.fields, nil
}

// fakeFactory hands out surfaces one per call and can fail specific calls.
type fakeFactory struct {
	mu        sync.Mutex
	surfaces  []*fakeSurface
	failCalls map[int]error // 1-based call number -> error
	calls     int
	released  int
	target    string
	fields    driver.ResultFields
}

func (f *fakeFactory) NewSurface(ctx context.Context) (driver.Surface, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.failCalls[f.calls]; err != nil {
		return nil, nil, err
	}
	s := &fakeSurface{target: f.target, fields: f.fields}
	f.surfaces = append(f.surfaces, s)
	release := func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}
	return s, release, nil
}

// recordingStore captures what PersistRun receives.
type recordingStore struct {
	mu      sync.Mutex
	records []probe.OutcomeRecord
	err     error
}

func (s *recordingStore) PersistRun(ctx context.Context, records []probe.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return s.err
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, store Store) *Orchestrator {
	t.Helper()
	log := zap.NewNop()
	raw, err := rawlog.NewWriter(cfg.Probe.OutputDir, cfg.Probe.OutPrefix, log)
	require.NoError(t, err)

	drv := driver.New(log)
	col := collector.New(log, cfg.Probe.ResultWait, cfg.Probe.ResultPoll)
	return New(log, cfg, drv, col, raw, store)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Probe: config.ProbeConfig{
			Seed:             1234,
			OutputDir:        t.TempDir(),
			OutPrefix:        "test",
			IterationTimeout: 30 * time.Second,
			ResultWait:       time.Second,
			ResultPoll:       time.Millisecond,
		},
	}
}

func fastProfile() probe.BehaviorProfile {
	// bot_obvious at 1ms keeps replay fast while staying a valid profile.
	p := probe.DefaultProfile(probe.ProfileBotObvious)
	p.FixedDelayMs = 1
	return p
}

func TestRun_CompletesAllIterations(t *testing.T) {
	cfg := testConfig(t)
	store := &recordingStore{}
	o := newTestOrchestrator(t, cfg, store)

	factory := &fakeFactory{
		target: "hi there",
		fields: driver.ResultFields{WPM: 96, Accuracy: 100},
	}

	records, err := o.Run(context.Background(), factory, fastProfile(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, i+1, rec.Iteration)
		assert.Equal(t, probe.StatusOK, rec.Status)
		assert.Equal(t, "hi there", rec.GroundTruth.Phrase)
		assert.InDelta(t, 96, rec.ObservedWPM, 1e-9)
		assert.NotEmpty(t, rec.RawLogPath)
		assert.FileExists(t, rec.RawLogPath)
	}

	// Run IDs are shared across the run and iterations use fresh surfaces.
	assert.Equal(t, records[0].RunID, records[2].RunID)
	assert.Equal(t, 3, factory.calls)
	assert.Equal(t, 3, factory.released, "every acquired surface must be released")

	// Each surface received the full phrase.
	for _, s := range factory.surfaces {
		value, _ := s.ReadValue(context.Background())
		assert.Equal(t, "hi there", value)
	}

	// The store got the full record set once.
	assert.Len(t, store.records, 3)

	// The summary CSV exists alongside the raw logs.
	assert.FileExists(t, filepath.Join(cfg.Probe.OutputDir, "runs_summary.csv"))
}

func TestRun_RawLogCarriesObservedDispatchOffsets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Probe.Phrase = "hi"
	o := newTestOrchestrator(t, cfg, nil)

	factory := &fakeFactory{fields: driver.ResultFields{WPM: 60, Accuracy: 100}}
	records, err := o.Run(context.Background(), factory, fastProfile(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	data, err := os.ReadFile(records[0].RawLogPath)
	require.NoError(t, err)
	var entry rawlog.IterationLog
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Len(t, entry.KeystrokeLog, 2)

	// The persisted log must hold observed wall-clock offsets, not just the
	// schedule, and they must be strictly increasing.
	var prev int64
	for i, ev := range entry.KeystrokeLog {
		assert.Greater(t, ev.DispatchedAtMs, prev, "event %d must carry an observed offset past the previous one", i)
		prev = ev.DispatchedAtMs
	}
}

func TestRun_FixedDelayEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Probe.Phrase = "the quick brown fox"
	o := newTestOrchestrator(t, cfg, nil)

	factory := &fakeFactory{fields: driver.ResultFields{WPM: 228, Accuracy: 100}}
	records, err := o.Run(context.Background(), factory, probe.DefaultProfile(probe.ProfileBotObvious), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for _, rec := range records {
		// 19 characters at a fixed 5ms each, no corrections.
		assert.Equal(t, int64(95), rec.GroundTruth.IntendedDurationMs)
		assert.Equal(t, 0, rec.GroundTruth.IntendedErrorCount)
	}
	for _, s := range factory.surfaces {
		require.Len(t, s.dispatched, 19)
		for _, ev := range s.dispatched {
			assert.Equal(t, probe.ActionPress, ev.Action)
			assert.Equal(t, 5, ev.ScheduledDelayMs)
		}
	}
}

func TestRun_ExplicitPhraseOverridesPageText(t *testing.T) {
	cfg := testConfig(t)
	cfg.Probe.Phrase = "configured phrase wins"
	o := newTestOrchestrator(t, cfg, nil)

	factory := &fakeFactory{target: "page phrase loses"}
	records, err := o.Run(context.Background(), factory, fastProfile(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "configured phrase wins", records[0].GroundTruth.Phrase)
}

func TestRun_RejectsInvalidParametersBeforeFirstIteration(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, nil)
	factory := &fakeFactory{target: "never used"}

	bad := probe.DefaultProfile(probe.ProfileHumanLike)
	bad.ErrorRate = 2.0
	_, err := o.Run(context.Background(), factory, bad, 1)
	require.ErrorIs(t, err, probe.ErrInvalidProfile)

	_, err = o.Run(context.Background(), factory, fastProfile(), 0)
	require.ErrorIs(t, err, probe.ErrInvalidProfile)

	assert.Zero(t, factory.calls, "no surface is acquired for a rejected run")
}

func TestRun_FailedIterationDoesNotAbortRun(t *testing.T) {
	cfg := testConfig(t)
	store := &recordingStore{}
	o := newTestOrchestrator(t, cfg, store)

	factory := &fakeFactory{
		target:    "resilience",
		fields:    driver.ResultFields{WPM: 50, Accuracy: 99},
		failCalls: map[int]error{2: fmt.Errorf("tab crashed: %w", driver.ErrSurfaceUnavailable)},
	}

	records, err := o.Run(context.Background(), factory, fastProfile(), 3)
	require.NoError(t, err, "one failed iteration must not fail the run")
	require.Len(t, records, 3)

	assert.Equal(t, probe.StatusOK, records[0].Status)
	assert.Equal(t, probe.StatusFailed, records[1].Status)
	assert.Contains(t, records[1].Error, "tab crashed")
	assert.Equal(t, probe.StatusOK, records[2].Status)

	// Failed iterations still land in the persisted set.
	assert.Len(t, store.records, 3)
}

func TestRun_ResultTimeoutRecordedAsFailedIteration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Probe.ResultWait = 20 * time.Millisecond
	o := newTestOrchestrator(t, cfg, nil)

	factory := &timeoutSurfaceFactory{target: "hi"}
	records, err := o.Run(context.Background(), factory, fastProfile(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, probe.StatusFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "timed out waiting for page result")
	assert.Equal(t, "hi", records[0].GroundTruth.Phrase,
		"ground truth established before the failure is preserved")
	assert.NotEmpty(t, records[0].RawLogPath, "failed iterations still persist raw evidence")
}

// timeoutSurfaceFactory produces surfaces whose result fields never render.
type timeoutSurfaceFactory struct {
	target string
}

func (f *timeoutSurfaceFactory) NewSurface(ctx context.Context) (driver.Surface, func(), error) {
	return &timeoutSurface{fakeSurface: fakeSurface{target: f.target}}, func() {}, nil
}

type timeoutSurface struct {
	fakeSurface
}

func (s *timeoutSurface) ReadResultFields(ctx context.Context) (driver.ResultFields, error) {
	return driver.ResultFields{}, errors.New("result element not rendered")
}

func TestRun_StopsBetweenIterationsOnCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	factory := &cancellingFactory{
		inner:  &fakeFactory{target: "stop soon", fields: driver.ResultFields{WPM: 10}},
		cancel: cancel,
		after:  2,
	}

	records, err := o.Run(ctx, factory, fastProfile(), 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, records, 2, "completed iterations are returned on early stop")
}

// cancellingFactory cancels the run context after handing out `after` surfaces.
type cancellingFactory struct {
	inner  *fakeFactory
	cancel context.CancelFunc
	after  int
}

func (f *cancellingFactory) NewSurface(ctx context.Context) (driver.Surface, func(), error) {
	s, release, err := f.inner.NewSurface(ctx)
	if f.inner.calls >= f.after {
		f.cancel()
	}
	return s, release, err
}

func TestRun_SeedDeterminismAcrossRuns(t *testing.T) {
	profile := probe.DefaultProfile(probe.ProfileHumanLike)
	profile.MinDelayMs = 1
	profile.MeanDelayMs = 2
	profile.DelayStdDevMs = 1
	profile.ErrorRate = 0.3

	sequences := make([][]probe.KeyEvent, 0, 2)
	for i := 0; i < 2; i++ {
		cfg := testConfig(t)
		cfg.Probe.Phrase = "same seed same schedule"
		o := newTestOrchestrator(t, cfg, nil)

		factory := &fakeFactory{fields: driver.ResultFields{WPM: 42, Accuracy: 97}}
		records, err := o.Run(context.Background(), factory, profile, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Len(t, factory.surfaces, 1)
		sequences = append(sequences, factory.surfaces[0].dispatched)
	}

	assert.Equal(t, sequences[0], sequences[1],
		"the same seed must reproduce the exact event schedule")
}
