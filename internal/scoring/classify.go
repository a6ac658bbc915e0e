package scoring

// Site classification constants.
const (
	ClassPreferred = "preferred"
	ClassNeutral   = "neutral"
	ClassExcluded  = "excluded"
	ClassOutside   = "outside"
)

// Outcome records which rule of the scoring policy produced a score.
type Outcome int

const (
	// OutcomeOutside: the point is outside the scored region; the score is NaN.
	OutcomeOutside Outcome = iota
	// OutcomeExcluded: the point is inside an excluded planning zone; the score is 0.
	OutcomeExcluded
	// OutcomeScored: the score is the sum of the closeness components.
	OutcomeScored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOutside:
		return "outside"
	case OutcomeExcluded:
		return "excluded"
	case OutcomeScored:
		return "scored"
	default:
		return "unknown"
	}
}

// Classify returns the tri-state site classification.
// Rules:
//   - outside: not in the scored region
//   - excluded: in an exclude-listed zone (takes precedence over include)
//   - preferred: in an include-listed zone
//   - neutral: anywhere else in the region
func Classify(inRegion, excluded, included bool) string {
	if !inRegion {
		return ClassOutside
	}
	if excluded {
		return ClassExcluded
	}
	if included {
		return ClassPreferred
	}
	return ClassNeutral
}
