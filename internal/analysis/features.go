// Package analysis turns raw iteration logs into the per-run feature table
// used for offline timing-variance analysis: inter-key interval statistics,
// backspace rates, burst fractions and autocorrelation.
package analysis

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/rawlog"
)

// burstThresholdMs marks an inter-key interval as a machine-like burst. No
// human sustains sub-30ms intervals across a phrase.
const burstThresholdMs = 30.0

// FeatureRow is the extracted signature of a single iteration log.
type FeatureRow struct {
	JSONFile  string
	Profile   probe.ProfileTag
	Status    probe.RunStatus
	CharCount int

	MeanIKIMs   float64
	StdIKIMs    float64
	MedianIKIMs float64
	MinIKIMs    float64
	MaxIKIMs    float64

	BackspaceCount int
	BackspaceRate  float64
	BurstFraction  float64
	AutocorrLag1   float64

	ComputedWPM      float64
	ObservedWPM      float64
	ObservedAccuracy float64
}

// Extract reads every iteration JSON log under dir and computes its features.
// Files that fail to parse are skipped with a warning; a bad log is not worth
// aborting the whole analysis over.
func Extract(dir string, log *zap.Logger) ([]FeatureRow, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob raw logs in %s: %w", dir, err)
	}
	sort.Strings(paths)

	rows := make([]FeatureRow, 0, len(paths))
	for _, path := range paths {
		row, err := extractFile(path)
		if err != nil {
			log.Warn("Skipping unparseable raw log", zap.String("path", path), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func extractFile(path string) (FeatureRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FeatureRow{}, err
	}
	var entry rawlog.IterationLog
	if err := json.Unmarshal(data, &entry); err != nil {
		return FeatureRow{}, fmt.Errorf("unmarshal %s: %w", path, err)
	}

	ikis := InterKeyIntervals(entry.KeystrokeLog)
	charCount := 0
	backspaces := 0
	for _, ev := range entry.KeystrokeLog {
		if ev.Action == probe.ActionBackspace {
			backspaces++
		} else {
			charCount++
		}
	}

	row := FeatureRow{
		JSONFile:         filepath.Base(path),
		Profile:          entry.Meta.Profile,
		Status:           entry.Outcome.Status,
		CharCount:        charCount,
		BackspaceCount:   backspaces,
		MeanIKIMs:        Mean(ikis),
		StdIKIMs:         StdDev(ikis),
		MedianIKIMs:      Median(ikis),
		AutocorrLag1:     AutocorrLag1(ikis),
		ComputedWPM:      entry.Outcome.ComputedWPM,
		ObservedWPM:      entry.Outcome.ObservedWPM,
		ObservedAccuracy: entry.Outcome.ObservedAccuracy,
	}
	if charCount > 0 {
		row.BackspaceRate = float64(backspaces) / float64(charCount)
	}
	if len(ikis) > 0 {
		row.MinIKIMs = ikis[0]
		row.MaxIKIMs = ikis[0]
		bursts := 0
		for _, v := range ikis {
			row.MinIKIMs = math.Min(row.MinIKIMs, v)
			row.MaxIKIMs = math.Max(row.MaxIKIMs, v)
			if v < burstThresholdMs {
				bursts++
			}
		}
		row.BurstFraction = float64(bursts) / float64(len(ikis))
	}
	return row, nil
}

// InterKeyIntervals returns the interval before every event after the first,
// in milliseconds. Pairs of events carrying observed dispatch offsets yield
// the observed interval; the scheduled delay is only a fallback for sequences
// that were never replayed. Observed intervals include the dispatch latency
// on top of the schedule, which is what the page actually measured.
func InterKeyIntervals(events []probe.KeyEvent) []float64 {
	if len(events) < 2 {
		return nil
	}
	out := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if prev.DispatchedAtMs > 0 && cur.DispatchedAtMs > 0 {
			out = append(out, float64(cur.DispatchedAtMs-prev.DispatchedAtMs))
			continue
		}
		out = append(out, float64(cur.ScheduledDelayMs))
	}
	return out
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation, 0 for an empty slice.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// Median returns the middle value, averaging the two central values for even
// lengths. 0 for an empty slice.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// AutocorrLag1 computes the lag-1 autocorrelation of the series. Fixed-delay
// bot timing yields an undefined denominator and returns 0, which is itself
// a strong signal.
func AutocorrLag1(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	denom := 0.0
	for _, x := range xs {
		d := x - mean
		denom += d * d
	}
	if denom == 0 {
		return 0
	}
	num := 0.0
	for i := 1; i < len(xs); i++ {
		num += (xs[i] - mean) * (xs[i-1] - mean)
	}
	return num / denom
}

var featureHeader = []string{
	"json_file", "profile", "status", "chars_typed",
	"mean_iki_ms", "std_iki_ms", "median_iki_ms", "min_iki_ms", "max_iki_ms",
	"backspace_count", "backspace_rate", "burst_fraction", "autocorr_lag1",
	"computed_wpm", "observed_wpm", "observed_accuracy",
}

// WriteCSV writes the feature table to path.
func WriteCSV(path string, rows []FeatureRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create features csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(featureHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.JSONFile, string(r.Profile), string(r.Status), strconv.Itoa(r.CharCount),
			ff(r.MeanIKIMs), ff(r.StdIKIMs), ff(r.MedianIKIMs), ff(r.MinIKIMs), ff(r.MaxIKIMs),
			strconv.Itoa(r.BackspaceCount), ff(r.BackspaceRate), ff(r.BurstFraction), ff(r.AutocorrLag1),
			ff(r.ComputedWPM), ff(r.ObservedWPM), ff(r.ObservedAccuracy),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ff(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
