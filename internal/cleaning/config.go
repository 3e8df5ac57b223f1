package cleaning

import (
	"fmt"
	"regexp"
	"strings"
)

// Config holds every tunable threshold of the cleaning pipeline. Values are
// supplied by the caller (usually from the config file); algorithm code never
// hardcodes them.
type Config struct {
	// WarnReduction is the per-stage reduction ratio above which a cleaner
	// attaches a diagnostic issue to its result. Informational only.
	WarnReduction float64 `yaml:"warn_reduction"`

	// EmergencyReduction triggers a rollback of a stage (or of the whole
	// pipeline on the final check) when exceeded.
	EmergencyReduction float64 `yaml:"emergency_reduction"`

	// MaxStageReduction triggers a skip of a single stage when exceeded.
	MaxStageReduction float64 `yaml:"max_stage_reduction"`

	// StructuralEmergency and StructuralMaxStage replace the two thresholds
	// above for structural cleaners. A response that is mostly echoed prompt
	// text legitimately shrinks by more than 90% once the wrapper is gone,
	// so these are floored at 0.95 and 0.90 respectively.
	StructuralEmergency float64 `yaml:"structural_emergency"`
	StructuralMaxStage  float64 `yaml:"structural_max_stage"`

	// ExtraPatterns are additional removal patterns applied by the
	// contamination cleaner after its built-in rules. Patterns that fail to
	// compile are logged and skipped without failing the stage.
	ExtraPatterns []Pattern `yaml:"extra_patterns"`

	Repetition RepetitionConfig `yaml:"repetition"`
}

// RepetitionConfig tunes the individual steps of the repetition cleaner.
// Each step can be toggled off independently.
type RepetitionConfig struct {
	CollapseRuns         bool `yaml:"collapse_runs"`
	CollapseTokens       bool `yaml:"collapse_tokens"`
	CollapseSentences    bool `yaml:"collapse_sentences"`
	CompressEnumerations bool `yaml:"compress_enumerations"`
	DedupeParagraphs     bool `yaml:"dedupe_paragraphs"`
	TrimDegenerateTail   bool `yaml:"trim_degenerate_tail"`

	// TokenBaseThreshold plus len(text)/TokenLengthDivisor is the occurrence
	// count at which a token is considered pathologically repeated.
	TokenBaseThreshold int `yaml:"token_base_threshold"`
	TokenLengthDivisor int `yaml:"token_length_divisor"`

	// TokenKeepRatio is the fraction of occurrences kept for a token that
	// crossed the repetition threshold.
	TokenKeepRatio float64 `yaml:"token_keep_ratio"`

	// SentenceMinLength is the rune count below which sentences pass through
	// the duplicate filter unconditionally.
	SentenceMinLength int `yaml:"sentence_min_length"`

	// SentenceMaxRepeats is how many occurrences of a duplicated sentence
	// survive the filter.
	SentenceMaxRepeats int `yaml:"sentence_max_repeats"`

	// EnumerationMinRepeats is the minimum contiguous repetition of a group
	// before a separated list is compressed to a single group instance.
	EnumerationMinRepeats int `yaml:"enumeration_min_repeats"`

	// ParagraphHeadChars is the fingerprint length for paragraph dedupe.
	ParagraphHeadChars int `yaml:"paragraph_head_chars"`

	// TailWindow is the rune count of the trailing window inspected for
	// degeneration; texts shorter than TailMinTextLength skip the step.
	TailWindow        int     `yaml:"tail_window"`
	TailMinTextLength int     `yaml:"tail_min_text_length"`
	TailMinDiversity  float64 `yaml:"tail_min_diversity"`

	// EmergencyReduction is the cleaner-internal safety valve: when the net
	// reduction of all steps exceeds it, every change is discarded and the
	// original text is returned.
	EmergencyReduction float64 `yaml:"emergency_reduction"`
}

// DefaultConfig returns the thresholds the tool ships with.
func DefaultConfig() Config {
	return Config{
		WarnReduction:       0.50,
		EmergencyReduction:  0.70,
		MaxStageReduction:   0.60,
		StructuralEmergency: 0.95,
		StructuralMaxStage:  0.90,
		Repetition: RepetitionConfig{
			CollapseRuns:          true,
			CollapseTokens:        true,
			CollapseSentences:     true,
			CompressEnumerations:  true,
			DedupeParagraphs:      true,
			TrimDegenerateTail:    true,
			TokenBaseThreshold:    10,
			TokenLengthDivisor:    500,
			TokenKeepRatio:        0.3,
			SentenceMinLength:     10,
			SentenceMaxRepeats:    2,
			EnumerationMinRepeats: 3,
			ParagraphHeadChars:    40,
			TailWindow:            400,
			TailMinTextLength:     80,
			TailMinDiversity:      0.3,
			EmergencyReduction:    0.70,
		},
	}
}

// normalized returns cfg with zero-valued thresholds replaced by defaults
// and the structural thresholds floored at their minimums.
func (cfg Config) normalized() Config {
	def := DefaultConfig()
	if cfg.WarnReduction <= 0 {
		cfg.WarnReduction = def.WarnReduction
	}
	if cfg.EmergencyReduction <= 0 {
		cfg.EmergencyReduction = def.EmergencyReduction
	}
	if cfg.MaxStageReduction <= 0 {
		cfg.MaxStageReduction = def.MaxStageReduction
	}
	if cfg.StructuralEmergency < def.StructuralEmergency {
		cfg.StructuralEmergency = def.StructuralEmergency
	}
	if cfg.StructuralMaxStage < def.StructuralMaxStage {
		cfg.StructuralMaxStage = def.StructuralMaxStage
	}
	cfg.Repetition = cfg.Repetition.normalized()
	return cfg
}

func (rc RepetitionConfig) normalized() RepetitionConfig {
	def := DefaultConfig().Repetition
	if rc.TokenBaseThreshold <= 0 {
		rc.TokenBaseThreshold = def.TokenBaseThreshold
	}
	if rc.TokenLengthDivisor <= 0 {
		rc.TokenLengthDivisor = def.TokenLengthDivisor
	}
	if rc.TokenKeepRatio <= 0 || rc.TokenKeepRatio > 1 {
		rc.TokenKeepRatio = def.TokenKeepRatio
	}
	if rc.SentenceMinLength <= 0 {
		rc.SentenceMinLength = def.SentenceMinLength
	}
	if rc.SentenceMaxRepeats <= 0 {
		rc.SentenceMaxRepeats = def.SentenceMaxRepeats
	}
	if rc.EnumerationMinRepeats <= 0 {
		rc.EnumerationMinRepeats = def.EnumerationMinRepeats
	}
	if rc.ParagraphHeadChars <= 0 {
		rc.ParagraphHeadChars = def.ParagraphHeadChars
	}
	if rc.TailWindow <= 0 {
		rc.TailWindow = def.TailWindow
	}
	if rc.TailMinTextLength <= 0 {
		rc.TailMinTextLength = def.TailMinTextLength
	}
	if rc.TailMinDiversity <= 0 {
		rc.TailMinDiversity = def.TailMinDiversity
	}
	if rc.EmergencyReduction <= 0 {
		rc.EmergencyReduction = def.EmergencyReduction
	}
	return rc
}

// Pattern is a removal pattern with its flags as separate typed fields.
// The expression itself must not embed flag shorthand.
type Pattern struct {
	Expr       string `yaml:"expr"`
	IgnoreCase bool   `yaml:"ignore_case"`
	Multiline  bool   `yaml:"multiline"`
}

// Compile builds the executable regexp for p.
func (p Pattern) Compile() (*regexp.Regexp, error) {
	var flags []string
	if p.IgnoreCase {
		flags = append(flags, "i")
	}
	if p.Multiline {
		flags = append(flags, "m")
	}

	expr := p.Expr
	if len(flags) > 0 {
		expr = "(?" + strings.Join(flags, "") + ")" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", p.Expr, err)
	}
	return re, nil
}
