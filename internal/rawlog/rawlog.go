// Package rawlog persists the per-iteration evidence files: one JSON log per
// iteration (event sequence, timings, outcome) plus an appended run summary
// CSV. These artifacts are what the offline vulnerability analysis consumes.
package rawlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
)

const summaryFileName = "runs_summary.csv"

var summaryHeader = []string{
	"run_id", "iteration", "profile", "status",
	"intended_duration_ms", "intended_error_count",
	"observed_wpm", "observed_accuracy", "computed_wpm",
	"elapsed_ms", "json_file",
}

// IterationLog is the on-disk shape of one iteration's evidence.
type IterationLog struct {
	Meta             Meta                `json:"meta"`
	KeystrokeLog     []probe.KeyEvent    `json:"keystroke_log"`
	Outcome          probe.OutcomeRecord `json:"outcome"`
	TargetTextSample string              `json:"target_text_sample"`
}

// Meta records when the iteration ran and under which identity.
type Meta struct {
	RunID     string           `json:"run_id"`
	Iteration int              `json:"iteration"`
	Profile   probe.ProfileTag `json:"profile"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
}

// Writer persists iteration logs under a single directory.
type Writer struct {
	dir    string
	prefix string
	log    *zap.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir, prefix string, log *zap.Logger) (*Writer, error) {
	if prefix == "" {
		prefix = "run"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw log directory %s: %w", dir, err)
	}
	return &Writer{dir: dir, prefix: prefix, log: log.Named("rawlog")}, nil
}

// WriteIteration writes the JSON evidence file for one iteration and returns
// its path. It is called for failed iterations too; the raw log is the
// evidence that makes a partial run worth keeping.
func (w *Writer) WriteIteration(entry IterationLog) (string, error) {
	name := fmt.Sprintf("%s_%s_iter%d.json",
		w.prefix,
		entry.Meta.StartTime.UTC().Format("20060102T150405"),
		entry.Meta.Iteration,
	)
	path := filepath.Join(w.dir, name)

	// Truncate the sample the same way the analysis side expects it.
	if len(entry.TargetTextSample) > 400 {
		entry.TargetTextSample = entry.TargetTextSample[:400]
	}

	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal iteration log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write iteration log %s: %w", path, err)
	}

	w.log.Debug("Raw log persisted", zap.String("path", path))
	return path, nil
}

// AppendSummary appends one row to the run summary CSV, writing the header
// first when the file is new.
func (w *Writer) AppendSummary(rec probe.OutcomeRecord) error {
	path := filepath.Join(w.dir, summaryFileName)
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open summary csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(summaryHeader); err != nil {
			return fmt.Errorf("write summary header: %w", err)
		}
	}
	row := []string{
		rec.RunID,
		strconv.Itoa(rec.Iteration),
		string(rec.Profile),
		string(rec.Status),
		strconv.FormatInt(rec.GroundTruth.IntendedDurationMs, 10),
		strconv.Itoa(rec.GroundTruth.IntendedErrorCount),
		formatFloat(rec.ObservedWPM),
		formatFloat(rec.ObservedAccuracy),
		formatFloat(rec.ComputedWPM),
		strconv.FormatInt(rec.ElapsedMs, 10),
		filepath.Base(rec.RawLogPath),
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write summary row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Dir returns the directory logs are written to.
func (w *Writer) Dir() string { return w.dir }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
