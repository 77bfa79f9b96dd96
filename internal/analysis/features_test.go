package analysis

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/rawlog"
)

func writeLog(t *testing.T, dir string, iteration int, events []probe.KeyEvent, profile probe.ProfileTag) string {
	t.Helper()
	w, err := rawlog.NewWriter(dir, "test", zap.NewNop())
	require.NoError(t, err)

	path, err := w.WriteIteration(rawlog.IterationLog{
		Meta: rawlog.Meta{
			RunID:     "run-1",
			Iteration: iteration,
			Profile:   profile,
			StartTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(iteration) * time.Second),
			EndTime:   time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		},
		KeystrokeLog: events,
		Outcome: probe.OutcomeRecord{
			RunID:     "run-1",
			Iteration: iteration,
			Profile:   profile,
			Status:    probe.StatusOK,
		},
	})
	require.NoError(t, err)
	return path
}

func TestStatistics(t *testing.T) {
	xs := []float64{100, 120, 80, 100}

	assert.InDelta(t, 100, Mean(xs), 1e-9)
	assert.InDelta(t, math.Sqrt(200), StdDev(xs), 1e-9)
	assert.InDelta(t, 100, Median(xs), 1e-9)
	assert.InDelta(t, 110, Median([]float64{100, 120}), 1e-9)
	assert.InDelta(t, 120, Median([]float64{120, 80, 200}), 1e-9)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev(nil))
	assert.Zero(t, Median(nil))
}

func TestAutocorrLag1(t *testing.T) {
	// A constant series has zero variance; the convention is to report 0,
	// which is exactly the fixed-delay bot signature.
	assert.Zero(t, AutocorrLag1([]float64{5, 5, 5, 5, 5}))
	assert.Zero(t, AutocorrLag1([]float64{5}))
	assert.Zero(t, AutocorrLag1(nil))

	// A strictly alternating series is strongly anti-correlated.
	alt := []float64{10, 20, 10, 20, 10, 20, 10, 20}
	assert.Less(t, AutocorrLag1(alt), -0.5)

	// A slow ramp is positively correlated.
	ramp := []float64{10, 20, 30, 40, 50, 60, 70, 80}
	assert.Greater(t, AutocorrLag1(ramp), 0.5)
}

func TestInterKeyIntervals(t *testing.T) {
	t.Run("falls back to schedule when never replayed", func(t *testing.T) {
		events := []probe.KeyEvent{
			{Key: "a", Action: probe.ActionPress, ScheduledDelayMs: 50},
			{Key: "b", Action: probe.ActionPress, ScheduledDelayMs: 110},
			{Key: "c", Action: probe.ActionPress, ScheduledDelayMs: 90},
		}
		assert.Equal(t, []float64{110, 90}, InterKeyIntervals(events))
		assert.Nil(t, InterKeyIntervals(events[:1]))
		assert.Nil(t, InterKeyIntervals(nil))
	})

	t.Run("prefers observed dispatch offsets", func(t *testing.T) {
		// Observed offsets carry dispatch latency the schedule never sees:
		// scheduled gaps are 110 and 90, observed gaps are 123 and 104.
		events := []probe.KeyEvent{
			{Key: "a", Action: probe.ActionPress, ScheduledDelayMs: 50, DispatchedAtMs: 58},
			{Key: "b", Action: probe.ActionPress, ScheduledDelayMs: 110, DispatchedAtMs: 181},
			{Key: "c", Action: probe.ActionPress, ScheduledDelayMs: 90, DispatchedAtMs: 285},
		}
		assert.Equal(t, []float64{123, 104}, InterKeyIntervals(events))
	})

	t.Run("partially replayed sequence mixes observed and scheduled", func(t *testing.T) {
		events := []probe.KeyEvent{
			{Key: "a", Action: probe.ActionPress, ScheduledDelayMs: 50, DispatchedAtMs: 55},
			{Key: "b", Action: probe.ActionPress, ScheduledDelayMs: 110, DispatchedAtMs: 170},
			{Key: "c", Action: probe.ActionPress, ScheduledDelayMs: 90},
		}
		assert.Equal(t, []float64{115, 90}, InterKeyIntervals(events))
	})
}

func TestExtract_ComputesRowPerLog(t *testing.T) {
	dir := t.TempDir()

	// A bot-style log: identical delays, no corrections.
	botEvents := []probe.KeyEvent{
		{Key: "a", Action: probe.ActionPress, ScheduledDelayMs: 5},
		{Key: "b", Action: probe.ActionPress, ScheduledDelayMs: 5},
		{Key: "c", Action: probe.ActionPress, ScheduledDelayMs: 5},
		{Key: "d", Action: probe.ActionPress, ScheduledDelayMs: 5},
	}
	writeLog(t, dir, 1, botEvents, probe.ProfileBotObvious)

	// A human-style log with one correction.
	humanEvents := []probe.KeyEvent{
		{Key: "h", Action: probe.ActionPress, ScheduledDelayMs: 120},
		{Key: "u", Action: probe.ActionPress, ScheduledDelayMs: 95},
		{Key: "Backspace", Action: probe.ActionBackspace, ScheduledDelayMs: 210},
		{Key: "i", Action: probe.ActionPress, ScheduledDelayMs: 140},
	}
	writeLog(t, dir, 2, humanEvents, probe.ProfileHumanLike)

	rows, err := Extract(dir, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	bot := rows[0]
	assert.Equal(t, probe.ProfileBotObvious, bot.Profile)
	assert.Equal(t, 4, bot.CharCount)
	assert.Equal(t, 0, bot.BackspaceCount)
	assert.InDelta(t, 5, bot.MeanIKIMs, 1e-9)
	assert.Zero(t, bot.StdIKIMs)
	assert.Zero(t, bot.AutocorrLag1)
	assert.InDelta(t, 1.0, bot.BurstFraction, 1e-9,
		"every 5ms interval sits under the burst threshold")

	human := rows[1]
	assert.Equal(t, probe.ProfileHumanLike, human.Profile)
	assert.Equal(t, 3, human.CharCount)
	assert.Equal(t, 1, human.BackspaceCount)
	assert.InDelta(t, 1.0/3.0, human.BackspaceRate, 1e-9)
	assert.Zero(t, human.BurstFraction)
	assert.Greater(t, human.StdIKIMs, 0.0)
	assert.InDelta(t, 95, human.MinIKIMs, 1e-9)
	assert.InDelta(t, 210, human.MaxIKIMs, 1e-9)
}

func TestExtract_SkipsUnparseableFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, 1, []probe.KeyEvent{
		{Key: "a", Action: probe.ActionPress, ScheduledDelayMs: 5},
		{Key: "b", Action: probe.ActionPress, ScheduledDelayMs: 5},
	}, probe.ProfileBotObvious)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz_garbage.json"), []byte("{not json"), 0o644))

	rows, err := Extract(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, rows, 1, "the bad file is skipped, not fatal")
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "features.csv")

	rows := []FeatureRow{{
		JSONFile:  "test_1.json",
		Profile:   probe.ProfileSuperhuman,
		Status:    probe.StatusOK,
		CharCount: 28,
		MeanIKIMs: 1,
	}}
	require.NoError(t, WriteCSV(out, rows))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	got, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, featureHeader, got[0])
	assert.Equal(t, "test_1.json", got[1][0])
	assert.Equal(t, "superhuman", got[1][1])
	assert.Equal(t, "28", got[1][3])
	assert.Equal(t, "1.0000", got[1][4])
}
