package probe

import (
	"errors"
	"fmt"
)

// ProfileTag identifies one of the closed set of typing behavior policies.
// Adding a profile means adding a constant here plus a branch in DelayFor;
// there is deliberately no string-matched dispatch anywhere else.
type ProfileTag string

const (
	// ProfileHumanLike samples inter-key delays from a bounded distribution
	// and occasionally injects a corrected mistake.
	ProfileHumanLike ProfileTag = "human_like"
	// ProfileBotObvious uses a single fixed delay for every key. Zero
	// variance, zero errors, trivially detectable by timing analysis.
	ProfileBotObvious ProfileTag = "bot_obvious"
	// ProfileSuperhuman types far below plausible human keystroke latency.
	ProfileSuperhuman ProfileTag = "superhuman"
)

// ErrInvalidProfile indicates out-of-range or inconsistent profile parameters.
// It is surfaced before any iteration starts and is fatal to the run.
var ErrInvalidProfile = errors.New("invalid profile parameters")

// ParseProfileTag converts a CLI/config string into a ProfileTag.
func ParseProfileTag(s string) (ProfileTag, error) {
	switch ProfileTag(s) {
	case ProfileHumanLike, ProfileBotObvious, ProfileSuperhuman:
		return ProfileTag(s), nil
	default:
		return "", fmt.Errorf("%w: unknown profile tag %q", ErrInvalidProfile, s)
	}
}

// BehaviorProfile holds the parameters of a single typing behavior policy.
// It is constructed once per run and never mutated afterwards.
type BehaviorProfile struct {
	Tag ProfileTag `json:"tag"`

	// human_like parameters.
	MeanDelayMs   float64 `json:"mean_delay_ms"`
	DelayStdDevMs float64 `json:"delay_stddev_ms"`
	MinDelayMs    float64 `json:"min_delay_ms"`
	ErrorRate     float64 `json:"error_rate"`

	// bot_obvious parameter.
	FixedDelayMs int `json:"fixed_delay_ms"`
}

// DefaultProfile returns the tuned defaults for a tag. The human_like numbers
// follow the key-pause distribution used for interactive typing simulation;
// the bot_obvious fixed delay matches the original probe default.
func DefaultProfile(tag ProfileTag) BehaviorProfile {
	p := BehaviorProfile{Tag: tag}
	switch tag {
	case ProfileHumanLike:
		p.MeanDelayMs = 120.0
		p.DelayStdDevMs = 45.0
		p.MinDelayMs = 35.0
		p.ErrorRate = 0.02
	case ProfileBotObvious:
		p.FixedDelayMs = 5
	case ProfileSuperhuman:
		// No tunables: the delay is the constant superhumanDelayMs.
	}
	return p
}

// Validate checks the parameters relevant to the profile's tag.
func (p BehaviorProfile) Validate() error {
	switch p.Tag {
	case ProfileHumanLike:
		if p.MeanDelayMs <= 0 {
			return fmt.Errorf("%w: human_like mean delay must be positive, got %v", ErrInvalidProfile, p.MeanDelayMs)
		}
		if p.DelayStdDevMs < 0 {
			return fmt.Errorf("%w: human_like delay stddev must be non-negative, got %v", ErrInvalidProfile, p.DelayStdDevMs)
		}
		if p.MinDelayMs <= 0 || p.MinDelayMs > p.MeanDelayMs {
			return fmt.Errorf("%w: human_like min delay must be in (0, mean], got %v", ErrInvalidProfile, p.MinDelayMs)
		}
		if p.ErrorRate < 0 || p.ErrorRate >= 1 {
			return fmt.Errorf("%w: error rate must be in [0, 1), got %v", ErrInvalidProfile, p.ErrorRate)
		}
	case ProfileBotObvious:
		if p.FixedDelayMs <= 0 {
			return fmt.Errorf("%w: bot_obvious fixed delay must be positive, got %d", ErrInvalidProfile, p.FixedDelayMs)
		}
	case ProfileSuperhuman:
		// Nothing to validate.
	default:
		return fmt.Errorf("%w: unknown profile tag %q", ErrInvalidProfile, p.Tag)
	}
	return nil
}
