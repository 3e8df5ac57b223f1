package cleaning

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Wrapper tag names used in the transcription prompt. The model is asked to
// put the transcript inside WrapperOpen/WrapperClose; everything the cleaner
// does with tags is anchored to this family.
const (
	WrapperTag   = "TRANSCRIPT"
	WrapperOpen  = "<" + WrapperTag + ">"
	WrapperClose = "</" + WrapperTag + ">"
)

// InstructionFor returns the transcription instruction sentences for lang.
// Unsupported languages fall back to English. The prompt builder and the
// contamination cleaner share this table so that whatever was sent to the
// model is exactly what gets stripped from its echo.
func InstructionFor(lang string) []string {
	if phrases, ok := instructionPhrases[baseLang(lang)]; ok {
		return phrases
	}
	return instructionPhrases["en"]
}

var instructionPhrases = map[string][]string{
	"ja": {
		"以下の音声を文字起こししてください。",
		"話者の発言内容のみを出力してください。",
	},
	"en": {
		"Please transcribe the following audio.",
		"Output only the spoken content, please.",
	},
	"zh": {
		"请转写以下音频内容。",
		"请只输出说话者的内容。",
	},
	"ko": {
		"다음 음성을 전사해 주세요.",
		"화자의 발화 내용만 출력해 주세요.",
	},
}

// placeholderPhrases are "speaker only" fillers the model sometimes emits
// instead of, or in addition to, actual speech. Removed wherever they appear.
var placeholderPhrases = map[string][]string{
	"ja": {"（話者の発言のみ）", "(話者の発言のみ)"},
	"en": {"(speaker content only)", "(spoken content only)"},
	"zh": {"（仅说话者内容）", "(仅说话者内容)"},
	"ko": {"(화자 발화만)", "(화자의 발화만)"},
}

// closingWords anchor the snippet-proximity rule: a truncated instruction
// snippet is only removed when one of these follows it closely, which keeps
// ordinary speech that merely resembles an instruction intact.
var closingWords = map[string][]string{
	"ja": {"してください", "ください", "のみ", "内容"},
	"en": {"please", "only", "content"},
	"zh": {"请", "只", "内容"},
	"ko": {"주세요", "만", "내용"},
}

// FormatLabelFor returns the output-format label used in the lang prompt.
// The cleaner strips label-only lines for every supported language at once,
// since the response language is not always the requested one.
func FormatLabelFor(lang string) string {
	if label, ok := formatLabelByLang[baseLang(lang)]; ok {
		return label
	}
	return formatLabelByLang["en"]
}

var formatLabelByLang = map[string]string{
	"ja": "出力形式",
	"en": "Output format",
	"zh": "输出格式",
	"ko": "출력 형식",
}

func formatLabelAlternation() string {
	labels := make([]string, 0, len(formatLabelByLang))
	for _, label := range formatLabelByLang {
		labels = append(labels, regexp.QuoteMeta(label))
	}
	sort.Strings(labels)
	return strings.Join(labels, "|")
}

// snippetLengths are the instruction-prefix lengths (in runes) tried by the
// snippet-proximity rule.
var snippetLengths = []int{10, 15, 20}

var (
	wrapperPairRe      = regexp.MustCompile(`(?s)` + WrapperOpen + `(.*?)` + WrapperClose)
	wrapperPairFoldRe  = regexp.MustCompile(`(?is)<` + WrapperTag + `\s*>(.*?)</` + WrapperTag + `\s*>`)
	wrapperOpenFoldRe  = regexp.MustCompile(`(?i)<` + WrapperTag + `(?:ION)?\s*>`)
	wrapperStrayRe     = regexp.MustCompile(`(?i)</?` + WrapperTag + `(?:ION)?\s*/?>`)
	emptyPairedTagRe   = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9_-]*)\s*>\s*</([A-Za-z][A-Za-z0-9_-]*)\s*>`)
	selfClosingTagRe   = regexp.MustCompile(`<[A-Za-z][A-Za-z0-9_-]*\s*/>`)
	formatLabelLineRe  = regexp.MustCompile(`(?m)^[ \t]*(?:` + formatLabelAlternation() + `)[:：][ \t]*$`)
	blankLineRe        = regexp.MustCompile(`(?m)^[ \t]+$`)
	excessNewlinesRe   = regexp.MustCompile(`\n{3,}`)
	snippetGapTemplate = `[^.!?。！？\n]{0,50}?`
)

// PromptContamination strips structural contamination leaked from the
// transcription instruction: wrapper tags, echoed instruction sentences,
// placeholder phrases, and format labels. It never removes text that is not
// anchored to a known instruction or tag family.
type PromptContamination struct {
	cfg     Config
	log     *zap.Logger
	extra   []*regexp.Regexp
	enabled bool
}

var _ Cleaner = (*PromptContamination)(nil)

// NewPromptContamination builds the cleaner. Extra patterns from cfg that
// fail to compile are logged and dropped; they never fail construction.
func NewPromptContamination(cfg Config, log *zap.Logger) *PromptContamination {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.normalized()

	var extra []*regexp.Regexp
	for _, p := range cfg.ExtraPatterns {
		re, err := p.Compile()
		if err != nil {
			log.Warn("skipping malformed contamination pattern", zap.String("expr", p.Expr), zap.Error(err))
			continue
		}
		extra = append(extra, re)
	}

	return &PromptContamination{cfg: cfg, log: log, extra: extra, enabled: true}
}

func (c *PromptContamination) Name() string       { return "prompt-contamination" }
func (c *PromptContamination) Enabled() bool      { return c.enabled }
func (c *PromptContamination) Category() Category { return CategoryStructural }

// SetEnabled toggles the cleaner without removing it from its pipeline.
func (c *PromptContamination) SetEnabled(enabled bool) { c.enabled = enabled }

// Clean runs the contamination rules in fixed order: wrapper extraction,
// leading instruction removal, snippet-with-context removal, placeholder and
// format-label removal, whitespace normalization.
func (c *PromptContamination) Clean(_ context.Context, text, lang string, cc *Context) (Result, error) {
	started := time.Now()
	origLen := len([]rune(text))
	lang = baseLang(lang)

	cleaned := c.extractWrapper(text)
	cleaned = c.removeLeadingInstructions(cleaned, lang)
	cleaned = c.removeInstructionSnippets(cleaned, lang)
	cleaned = c.removeContextPatterns(cleaned, lang)
	for _, re := range c.extra {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = normalizeWhitespace(cleaned)

	ratio := reductionRatio(origLen, len([]rune(cleaned)))
	result := Result{
		Text:              cleaned,
		SignificantChange: ratio > significantChangeThreshold,
		Metadata: map[string]any{
			"reduction_ratio": ratio,
			"duration":        time.Since(started),
		},
	}
	if ratio > c.cfg.WarnReduction {
		result.Issues = append(result.Issues, "high reduction ratio")
	}
	return result, nil
}

// extractWrapper reduces text to the interior of a complete wrapper pair.
// Extraction, not deletion: content outside an accidentally duplicated
// wrapper is discarded deliberately, while a truncated response missing the
// closing tag keeps everything after the opening tag.
func (c *PromptContamination) extractWrapper(text string) string {
	if m := wrapperPairRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if m := wrapperPairFoldRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if loc := wrapperOpenFoldRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}

	text = wrapperStrayRe.ReplaceAllString(text, "")
	text = emptyPairedTagRe.ReplaceAllStringFunc(text, func(s string) string {
		m := emptyPairedTagRe.FindStringSubmatch(s)
		if strings.EqualFold(m[1], m[2]) {
			return ""
		}
		return s
	})
	return selfClosingTagRe.ReplaceAllString(text, "")
}

// removeLeadingInstructions cuts known instruction sentences off the front
// of the text. Prefix matches only; an instruction-like phrase in the middle
// of genuine speech is left alone.
func (c *PromptContamination) removeLeadingInstructions(text, lang string) string {
	phrases := instructionPhrasesFor(lang)
	for changed := true; changed; {
		changed = false
		trimmed := strings.TrimSpace(text)
		for _, phrase := range phrases {
			if strings.HasPrefix(trimmed, phrase) {
				text = strings.TrimSpace(strings.TrimPrefix(trimmed, phrase))
				changed = true
				break
			}
		}
	}
	return text
}

// removeInstructionSnippets removes truncated instruction echoes. A snippet
// (instruction prefix) alone is not enough; it must be followed within ~50
// characters, with no sentence terminator in between, by a closing word
// associated with instructional phrasing.
func (c *PromptContamination) removeInstructionSnippets(text, lang string) string {
	closers := closingWordsFor(lang)
	if len(closers) == 0 {
		return text
	}

	quoted := make([]string, len(closers))
	for i, w := range closers {
		quoted[i] = regexp.QuoteMeta(w)
	}
	closerAlt := "(?:" + strings.Join(quoted, "|") + ")"

	for _, phrase := range instructionPhrasesFor(lang) {
		runes := []rune(phrase)
		for _, n := range snippetLengths {
			if len(runes) <= n {
				continue
			}
			snippet := string(runes[:n])
			expr := regexp.QuoteMeta(snippet) + snippetGapTemplate + closerAlt
			re, err := regexp.Compile(expr)
			if err != nil {
				c.log.Warn("skipping malformed snippet pattern", zap.String("snippet", snippet), zap.Error(err))
				continue
			}
			text = re.ReplaceAllString(text, "")
		}
	}
	return text
}

// removeContextPatterns drops placeholder phrases wherever they appear and
// lines consisting solely of a format label.
func (c *PromptContamination) removeContextPatterns(text, lang string) string {
	phrases := placeholderPhrases[lang]
	if phrases == nil {
		phrases = placeholderPhrases["en"]
	}
	for _, phrase := range phrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	return formatLabelLineRe.ReplaceAllString(text, "")
}

func instructionPhrasesFor(lang string) []string {
	if phrases, ok := instructionPhrases[lang]; ok {
		return phrases
	}
	return instructionPhrases["en"]
}

func closingWordsFor(lang string) []string {
	if words, ok := closingWords[lang]; ok {
		return words
	}
	return closingWords["en"]
}

// normalizeWhitespace collapses 3+ newlines to 2, clears whitespace-only
// lines, and trims the ends.
func normalizeWhitespace(text string) string {
	text = blankLineRe.ReplaceAllString(text, "")
	text = excessNewlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// baseLang lowers a language tag to its two-letter base ("ja-JP" -> "ja").
// Unparseable inputs ("auto", "") come back trimmed and lowercased so map
// lookups simply miss.
func baseLang(lang string) string {
	trimmed := strings.ToLower(strings.TrimSpace(lang))
	tag, err := language.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		return trimmed
	}
	base, _ := tag.Base()
	return base.String()
}
