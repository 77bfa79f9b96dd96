package probe

import (
	"fmt"
	"math/rand"
	"strings"
)

// KeyAction distinguishes the two event kinds a sequence may contain.
type KeyAction string

const (
	ActionPress     KeyAction = "press"
	ActionBackspace KeyAction = "backspace"
)

// KeyEvent is one timed input event. ScheduledDelayMs is the wait the driver
// honors before dispatching the event; insertion order is temporal order and
// must be preserved exactly during replay. DispatchedAtMs is the observed
// offset from replay start at which the driver actually sent the event, zero
// until the event has been replayed. The schedule is the plan; the dispatch
// offsets are the evidence of what the page saw.
type KeyEvent struct {
	Key              string    `json:"key"`
	Action           KeyAction `json:"action"`
	ScheduledDelayMs int       `json:"scheduled_delay_ms"`
	DispatchedAtMs   int64     `json:"dispatched_at_ms,omitempty"`
}

// GroundTruth captures the outcome a sequence is intended to produce, fixed
// before replay and used as the baseline against the page's reported result.
type GroundTruth struct {
	Phrase             string `json:"phrase"`
	IntendedDurationMs int64  `json:"intended_duration_ms"`
	IntendedErrorCount int    `json:"intended_error_count"`
}

// BuildSequence turns a target phrase and a profile into an ordered event
// sequence plus its ground truth. An injected error expands into a plausible
// wrong press, a recognition pause before the backspace, and the corrected
// press, so replaying the full sequence always reconstructs the phrase.
func BuildSequence(phrase string, p BehaviorProfile, rng *rand.Rand) ([]KeyEvent, GroundTruth, error) {
	if err := p.Validate(); err != nil {
		return nil, GroundTruth{}, err
	}
	if phrase == "" {
		return nil, GroundTruth{}, fmt.Errorf("%w: empty phrase", ErrInvalidProfile)
	}

	runes := []rune(phrase)
	events := make([]KeyEvent, 0, len(runes))
	gt := GroundTruth{Phrase: phrase}

	for i, r := range runes {
		delayMs, inject := DelayFor(rng, p, runes, i)

		if !inject {
			events = append(events, KeyEvent{
				Key:              string(r),
				Action:           ActionPress,
				ScheduledDelayMs: delayMs,
			})
			gt.IntendedDurationMs += int64(delayMs)
			continue
		}

		wrong := wrongKeyFor(rng, r)
		recognitionMs := humanDelayMs(rng, p, nil, 0, recognitionScale)
		repositionMs := humanDelayMs(rng, p, nil, 0, repositioningScale)

		events = append(events,
			KeyEvent{Key: string(wrong), Action: ActionPress, ScheduledDelayMs: delayMs},
			KeyEvent{Key: "Backspace", Action: ActionBackspace, ScheduledDelayMs: recognitionMs},
			KeyEvent{Key: string(r), Action: ActionPress, ScheduledDelayMs: repositionMs},
		)
		gt.IntendedDurationMs += int64(delayMs) + int64(recognitionMs) + int64(repositionMs)
		gt.IntendedErrorCount++
	}

	return events, gt, nil
}

// SimulateReplay applies press/backspace semantics to an event sequence and
// returns the final visible text, without any timing. BuildSequence guarantees
// SimulateReplay(events) == phrase for every profile.
func SimulateReplay(events []KeyEvent) string {
	var b []rune
	for _, ev := range events {
		switch ev.Action {
		case ActionBackspace:
			if len(b) > 0 {
				b = b[:len(b)-1]
			}
		case ActionPress:
			b = append(b, []rune(ev.Key)...)
		}
	}
	return string(b)
}

// SequenceDurationMs sums the scheduled delays of a sequence. It matches
// GroundTruth.IntendedDurationMs for sequences produced by BuildSequence.
func SequenceDurationMs(events []KeyEvent) int64 {
	var total int64
	for _, ev := range events {
		total += int64(ev.ScheduledDelayMs)
	}
	return total
}

// CountBackspaces reports how many backspace events a sequence contains.
func CountBackspaces(events []KeyEvent) int {
	n := 0
	for _, ev := range events {
		if ev.Action == ActionBackspace {
			n++
		}
	}
	return n
}

// String renders a compact human-readable form of the sequence for debug logs.
func String(events []KeyEvent) string {
	var sb strings.Builder
	for i, ev := range events {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if ev.Action == ActionBackspace {
			sb.WriteString(fmt.Sprintf("<bs+%dms>", ev.ScheduledDelayMs))
		} else {
			sb.WriteString(fmt.Sprintf("%s+%dms", ev.Key, ev.ScheduledDelayMs))
		}
	}
	return sb.String()
}
