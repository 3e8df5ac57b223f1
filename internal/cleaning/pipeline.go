package cleaning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StageMetrics records one cleaner's contribution to a pipeline run. The
// reduction ratio is relative to the text entering that stage.
type StageMetrics struct {
	Cleaner        string
	ReductionRatio float64
	Duration       time.Duration
	Issues         []string
}

// Report aggregates a whole pipeline run. ReductionRatio is relative to the
// original input text.
type Report struct {
	OriginalLength int
	FinalLength    int
	ReductionRatio float64
	Stages         []StageMetrics
}

// Outcome is what Execute returns: the final text plus the run report.
type Outcome struct {
	FinalText string
	Report    Report
}

// Pipeline runs an ordered list of cleaners over one input, guarding every
// stage and the run as a whole with the safety check. Execute never returns
// an error: a throwing stage degrades to a no-op and over-aggressive stages
// are skipped or rolled back, so a usable transcript always comes out.
type Pipeline struct {
	mu       sync.Mutex
	cleaners []Cleaner
	cfg      Config
	log      *zap.Logger
}

// NewPipeline builds a pipeline that owns the given cleaner order.
func NewPipeline(cfg Config, log *zap.Logger, cleaners ...Cleaner) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cleaners: append([]Cleaner(nil), cleaners...),
		cfg:      cfg.normalized(),
		log:      log,
	}
}

// NewDefaultPipeline wires the standard stage order: prompt contamination
// first, repetition second.
func NewDefaultPipeline(cfg Config, log *zap.Logger) *Pipeline {
	return NewPipeline(cfg, log,
		NewPromptContamination(cfg, log),
		NewUniversalRepetition(cfg, log),
	)
}

// AddCleaner appends c to the stage order.
func (p *Pipeline) AddCleaner(c Cleaner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleaners = append(p.cleaners, c)
}

// RemoveCleaner removes the cleaner with the given name. Reports whether a
// cleaner was removed.
func (p *Pipeline) RemoveCleaner(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.cleaners {
		if c.Name() == name {
			p.cleaners = append(p.cleaners[:i], p.cleaners[i+1:]...)
			return true
		}
	}
	return false
}

// Cleaners returns a snapshot of the current stage order.
func (p *Pipeline) Cleaners() []Cleaner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Cleaner(nil), p.cleaners...)
}

// Execute runs every enabled cleaner in order over text. The caller may
// supply a partial Context; language and original length are always set
// fresh for the run.
func (p *Pipeline) Execute(ctx context.Context, text, lang string, partial *Context) Outcome {
	cc := Context{}
	if partial != nil {
		cc = *partial
	}
	cc.Language = lang
	cc.OriginalLength = len([]rune(text))
	if cc.Start.IsZero() {
		cc.Start = time.Now()
	}

	cleaners := p.Cleaners()
	current := text
	stages := make([]StageMetrics, 0, len(cleaners))
	structural := false

	for _, cleaner := range cleaners {
		if cleaner.Category() == CategoryStructural && cleaner.Enabled() {
			structural = true
		}
		if !cleaner.Enabled() {
			p.log.Debug("cleaner disabled; skipping", zap.String("cleaner", cleaner.Name()))
			continue
		}

		stageStart := time.Now()
		stageLen := len([]rune(current))

		result, err := cleaner.Clean(ctx, current, lang, &cc)
		if err != nil {
			// One misbehaving stage never aborts the run; the pre-stage
			// text continues down the pipeline untouched.
			p.log.Warn("cleaner failed; continuing with previous text",
				zap.String("cleaner", cleaner.Name()), zap.Error(err))
			stages = append(stages, StageMetrics{
				Cleaner:  cleaner.Name(),
				Duration: time.Since(stageStart),
				Issues:   []string{fmt.Sprintf("Error: %v", err)},
			})
			continue
		}

		verdict := p.safetyCheck(stageLen, len([]rune(result.Text)), cleaner.Category())
		switch verdict.Action {
		case ActionRollback:
			p.log.Warn("stage rolled back",
				zap.String("cleaner", cleaner.Name()),
				zap.String("reason", verdict.Reason),
				zap.Float64("ratio", verdict.ReductionRatio))
		case ActionSkip:
			p.log.Info("stage skipped",
				zap.String("cleaner", cleaner.Name()),
				zap.String("reason", verdict.Reason),
				zap.Float64("ratio", verdict.ReductionRatio))
		default:
			current = result.Text
		}

		stages = append(stages, StageMetrics{
			Cleaner:        cleaner.Name(),
			ReductionRatio: verdict.ReductionRatio,
			Duration:       time.Since(stageStart),
			Issues:         result.Issues,
		})
	}

	// Whole-pipeline safety net: individually acceptable stages can still
	// compound into unacceptable loss. Relaxed thresholds apply when a
	// structural stage took part, since a legitimate wrapper strip can
	// shrink the response past the content-stage limits.
	finalCategory := CategoryContent
	if structural {
		finalCategory = CategoryStructural
	}
	final := p.safetyCheck(cc.OriginalLength, len([]rune(current)), finalCategory)
	if final.Action == ActionRollback {
		p.log.Warn("pipeline rolled back to original text",
			zap.String("reason", final.Reason),
			zap.Float64("ratio", final.ReductionRatio))
		current = text
	}

	return Outcome{
		FinalText: current,
		Report: Report{
			OriginalLength: cc.OriginalLength,
			FinalLength:    len([]rune(current)),
			ReductionRatio: reductionRatio(cc.OriginalLength, len([]rune(current))),
			Stages:         stages,
		},
	}
}

// safetyCheck classifies a proposed reduction. Structural cleaners get the
// relaxed thresholds; everything else is held to the strict ones.
func (p *Pipeline) safetyCheck(origLen, newLen int, cat Category) SafetyVerdict {
	if origLen == 0 {
		return SafetyVerdict{Safe: true, Action: ActionProceed}
	}
	if newLen == 0 && cat == CategoryStructural {
		// The whole response was contamination. An empty extraction is a
		// valid structural outcome and must propagate, not be mistaken for
		// runaway deletion.
		return SafetyVerdict{Safe: true, Action: ActionProceed, ReductionRatio: 1}
	}

	emergency := p.cfg.EmergencyReduction
	maxStage := p.cfg.MaxStageReduction
	if cat == CategoryStructural {
		emergency = p.cfg.StructuralEmergency
		maxStage = p.cfg.StructuralMaxStage
	}

	ratio := reductionRatio(origLen, newLen)
	switch {
	case ratio > emergency:
		return SafetyVerdict{
			Action:         ActionRollback,
			Reason:         fmt.Sprintf("reduction %.2f exceeds emergency threshold %.2f", ratio, emergency),
			ReductionRatio: ratio,
		}
	case ratio > maxStage:
		return SafetyVerdict{
			Action:         ActionSkip,
			Reason:         fmt.Sprintf("reduction %.2f exceeds stage threshold %.2f", ratio, maxStage),
			ReductionRatio: ratio,
		}
	default:
		return SafetyVerdict{Safe: true, Action: ActionProceed, ReductionRatio: ratio}
	}
}
