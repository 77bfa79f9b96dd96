package probe

import (
	"math"
	"math/rand"
	"strings"
	"unicode"
)

const (
	// superhumanDelayMs is the constant inter-key delay for the superhuman
	// profile. It sits well below any plausible human keystroke latency.
	superhumanDelayMs = 1

	// HumanImplausibleThresholdMs is the floor below which no human
	// inter-key interval is credible. Superhuman delays stay under it.
	HumanImplausibleThresholdMs = 20

	// Rhythm factors applied to the human_like mean delay based on the
	// preceding character.
	afterBreakFactor = 1.35 // after space or punctuation, hands reposition
	repeatKeyFactor  = 0.7  // same key twice, finger already in place
	digramFactor     = 0.85 // common letter pair, practiced motion

	// Correction pause scaling: recognizing a typo takes longer than a
	// normal keystroke, repositioning after the backspace slightly less so.
	recognitionScale   = 1.8
	repositioningScale = 1.2
)

// keyboardNeighbors maps each key to the keys physically adjacent on a QWERTY
// layout. Used both to weight delay heuristics and to pick plausible wrong
// characters for injected errors.
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// commonDigrams are high-frequency English letter pairs that trained typists
// produce faster than unrelated pairs.
var commonDigrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
}

// DelayFor computes the scheduled delay before the character at index, plus
// whether a transient error should be injected there. It is a pure function
// of the profile, the phrase position and the supplied random source, so a
// fixed seed reproduces the exact same schedule.
func DelayFor(rng *rand.Rand, p BehaviorProfile, runes []rune, index int) (delayMs int, injectError bool) {
	switch p.Tag {
	case ProfileBotObvious:
		return p.FixedDelayMs, false
	case ProfileSuperhuman:
		return superhumanDelayMs, false
	default:
		delayMs = humanDelayMs(rng, p, runes, index, 1.0)
		// Never inject on the final character: the correction would land
		// after the page considers the phrase complete.
		if index+1 < len(runes) && rng.Float64() < p.ErrorRate {
			injectError = true
		}
		return delayMs, injectError
	}
}

// humanDelayMs samples one human_like inter-key delay. The scale parameter
// stretches the distribution for correction pauses.
func humanDelayMs(rng *rand.Rand, p BehaviorProfile, runes []rune, index int, scale float64) int {
	mean := p.MeanDelayMs * scale
	minDelay := p.MinDelayMs * scale

	factor := 1.0
	if index > 0 && index < len(runes) {
		prev, curr := runes[index-1], runes[index]
		switch {
		case unicode.IsSpace(prev) || unicode.IsPunct(prev):
			factor = afterBreakFactor
		case prev == curr:
			factor = repeatKeyFactor
		case commonDigrams[strings.ToLower(string([]rune{prev, curr}))]:
			factor = digramFactor
		}
	}

	delay := rng.NormFloat64()*p.DelayStdDevMs + mean*factor
	return int(math.Round(math.Max(minDelay, delay)))
}

// wrongKeyFor picks a plausible mistyped character for the intended key: a
// physical neighbor when one exists, otherwise a random lowercase letter.
func wrongKeyFor(rng *rand.Rand, intended rune) rune {
	lower := unicode.ToLower(intended)
	if neighbors, ok := keyboardNeighbors[lower]; ok && len(neighbors) > 0 {
		wrong := rune(neighbors[rng.Intn(len(neighbors))])
		if unicode.IsUpper(intended) {
			wrong = unicode.ToUpper(wrong)
		}
		return wrong
	}
	return rune('a' + rng.Intn(26))
}
