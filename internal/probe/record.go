package probe

// RunStatus marks whether an iteration produced a readable result or failed.
// Failed iterations still yield a full record; nothing is silently dropped.
type RunStatus string

const (
	StatusOK     RunStatus = "ok"
	StatusFailed RunStatus = "failed"
)

// OutcomeRecord pairs the page's self-reported result with the ground truth
// the iteration intended to produce. The comparison between the two is the
// anti-cheat signal the probe exists to capture; no judgment is made here.
type OutcomeRecord struct {
	RunID     string     `json:"run_id"`
	Iteration int        `json:"iteration"`
	Profile   ProfileTag `json:"profile"`

	GroundTruth GroundTruth `json:"ground_truth"`

	// Values as reported by the page under test, not recomputed locally.
	ObservedWPM      float64 `json:"observed_wpm"`
	ObservedAccuracy float64 `json:"observed_accuracy"`

	// ComputedWPM is the local fallback (chars/5 per minute over the replay
	// wall clock), recorded alongside for comparison.
	ComputedWPM float64 `json:"computed_wpm"`

	ElapsedMs int64 `json:"elapsed_ms"`

	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`

	// RawLogPath points at the per-iteration JSON evidence file.
	RawLogPath string `json:"raw_log_path,omitempty"`
}

// ComputeWPM returns the standard words-per-minute figure for a character
// count typed over elapsedMs, using the five-characters-per-word convention.
func ComputeWPM(charCount int, elapsedMs int64) float64 {
	if elapsedMs <= 0 || charCount <= 0 {
		return 0
	}
	minutes := float64(elapsedMs) / 60000.0
	return (float64(charCount) / 5.0) / minutes
}
