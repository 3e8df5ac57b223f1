// Package cleaning removes prompt contamination and repetition artifacts
// from raw speech-to-text responses. Cleaners are composed into a Pipeline
// that runs them in order and guards every stage with a ratio-based safety
// check, so a misbehaving heuristic can never erase a transcript.
package cleaning

import (
	"context"
	"time"
)

// significantChangeThreshold is the reduction ratio above which a cleaner
// reports SignificantChange on its Result.
const significantChangeThreshold = 0.05

// Category classifies what kind of removal a cleaner performs. Structural
// cleaners strip wrapper markup and echoed instructions and may legitimately
// shrink a response by more than 90%, so the pipeline relaxes their safety
// thresholds. Content cleaners touch the transcript itself and are held to
// the strict thresholds.
type Category int

const (
	CategoryContent Category = iota
	CategoryStructural
)

// Action is the safety-check verdict on a proposed text reduction.
type Action int

const (
	// ActionProceed adopts the cleaned text.
	ActionProceed Action = iota
	// ActionSkip keeps the prior text; logged as a skipped stage.
	ActionSkip
	// ActionRollback keeps the prior text; logged as a rolled-back stage.
	ActionRollback
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionRollback:
		return "rollback"
	default:
		return "proceed"
	}
}

// Context carries per-invocation parameters shared by every stage of one
// pipeline run. OriginalLength is fixed at pipeline entry; whole-pipeline
// ratios reference it while per-stage ratios reference the length entering
// that stage.
type Context struct {
	Language       string
	OriginalLength int
	Verbose        bool
	Prompt         string
	Start          time.Time
}

// Result is the output of a single cleaner invocation. An empty Text is
// valid and must propagate; it is not an error.
type Result struct {
	Text              string
	Issues            []string
	SignificantChange bool
	Metadata          map[string]any
}

// SafetyVerdict is the outcome of a safety check. It is computed fresh per
// stage and never persisted.
type SafetyVerdict struct {
	Safe           bool
	Reason         string
	Action         Action
	ReductionRatio float64
}

// Cleaner is one named, independently toggleable text transformation unit.
// Implementations must be stateless per call and must never return text
// derived from anything but the given input.
type Cleaner interface {
	Name() string
	Enabled() bool
	Category() Category
	Clean(ctx context.Context, text, lang string, cc *Context) (Result, error)
}

// reductionRatio returns the relative shrink from origLen to newLen,
// clamped at 1. Growth yields a negative ratio.
func reductionRatio(origLen, newLen int) float64 {
	if origLen == 0 {
		return 0
	}
	ratio := float64(origLen-newLen) / float64(origLen)
	if ratio > 1 {
		return 1
	}
	return ratio
}
