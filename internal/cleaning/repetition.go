package cleaning

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// minRepetitionInputRunes is the absolute floor below which the repetition
// cleaner returns its input untouched. Texts that short carry no repetition
// signal and touching them risks total data loss.
const minRepetitionInputRunes = 10

// degenerate substring runs in the tail window: lengths tried and the
// contiguous repeat count that counts as a run.
const (
	tailRunMinLen  = 2
	tailRunMaxLen  = 20
	tailRunRepeats = 3
)

var sentenceTerminators = []rune{'.', '!', '?', '。', '！', '？'}

// UniversalRepetition collapses pathological repetition at several
// granularities using only structural signal: character runs, token counts,
// sentence fingerprints, enumeration cycles, paragraph fingerprints, and a
// degenerating-tail cut. No per-language lexicon is involved, which is what
// lets the same rules work across scripts.
type UniversalRepetition struct {
	cfg     Config
	log     *zap.Logger
	enabled bool
}

var _ Cleaner = (*UniversalRepetition)(nil)

func NewUniversalRepetition(cfg Config, log *zap.Logger) *UniversalRepetition {
	if log == nil {
		log = zap.NewNop()
	}
	return &UniversalRepetition{cfg: cfg.normalized(), log: log, enabled: true}
}

func (c *UniversalRepetition) Name() string       { return "universal-repetition" }
func (c *UniversalRepetition) Enabled() bool      { return c.enabled }
func (c *UniversalRepetition) Category() Category { return CategoryContent }

// SetEnabled toggles the cleaner without removing it from its pipeline.
func (c *UniversalRepetition) SetEnabled(enabled bool) { c.enabled = enabled }

// Clean applies the enabled reduction steps in order, then the emergency
// valve: when the steps together erased more than the configured fraction of
// the input, every change is discarded and the original text returned.
func (c *UniversalRepetition) Clean(_ context.Context, text, _ string, cc *Context) (Result, error) {
	started := time.Now()
	origRunes := []rune(text)
	if len(origRunes) < minRepetitionInputRunes {
		return Result{Text: text, Metadata: map[string]any{"skipped": "below minimum length"}}, nil
	}

	rc := c.cfg.Repetition
	cleaned := text
	steps := 0

	apply := func(enabled bool, step func(string) string) {
		if !enabled {
			return
		}
		next := step(cleaned)
		if next != cleaned {
			steps++
		}
		cleaned = next
	}

	apply(rc.CollapseRuns, collapseCharacterRuns)
	apply(rc.CollapseTokens, func(s string) string { return c.collapseTokenRepeats(s) })
	apply(rc.CollapseSentences, func(s string) string { return c.collapseSentenceRepeats(s) })
	apply(rc.CompressEnumerations, func(s string) string { return c.compressEnumerations(s) })
	apply(rc.DedupeParagraphs, func(s string) string { return c.dedupeParagraphs(s) })
	apply(rc.TrimDegenerateTail, func(s string) string { return c.trimDegenerateTail(s) })
	apply(true, finalCleanup)

	ratio := reductionRatio(len(origRunes), len([]rune(cleaned)))
	if ratio > rc.EmergencyReduction {
		c.log.Warn("repetition cleaner emergency fallback",
			zap.Float64("ratio", ratio),
			zap.Float64("threshold", rc.EmergencyReduction))
		return Result{
			Text:   text,
			Issues: []string{"emergency fallback: repetition cleanup discarded"},
			Metadata: map[string]any{
				"reduction_ratio": 0.0,
				"duration":        time.Since(started),
			},
		}, nil
	}

	return Result{
		Text:              cleaned,
		SignificantChange: ratio > significantChangeThreshold,
		Metadata: map[string]any{
			"reduction_ratio": ratio,
			"reduction_steps": steps,
			"duration":        time.Since(started),
		},
	}, nil
}

// --- step 1: character and symbol runs ---

// collapseCharacterRuns kills degenerate single-character runs while keeping
// up to three repeats of terminal punctuation and paragraph whitespace.
func collapseCharacterRuns(text string) string {
	runes := []rune(text)
	var out []rune

	i := 0
	for i < len(runes) {
		r := runes[i]
		runLen := 1
		for i+runLen < len(runes) && runes[i+runLen] == r {
			runLen++
		}

		keep := runLen
		switch {
		case isSeparatorSymbol(r) && runLen >= 6:
			keep = 1
		case isTerminalPunct(r) && runLen >= 5:
			keep = 3
		case r == '…' && runLen >= 3:
			keep = 1
		case isCommaLike(r) && runLen >= 4:
			keep = 2
		case unicode.IsSpace(r) && runLen >= 4:
			keep = 3
		}

		for k := 0; k < keep; k++ {
			out = append(out, r)
		}
		i += runLen
	}
	return string(out)
}

func isSeparatorSymbol(r rune) bool {
	switch r {
	case '-', '–', '—', '=', '_', '*', '~', '•', '・', '●', '○', '■', '◆', '▪', '#':
		return true
	}
	return false
}

func isTerminalPunct(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

func isCommaLike(r rune) bool {
	return r == ',' || r == '、' || r == '，'
}

// --- step 2: token repetition ---

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenNumber
	tokenSpace
	tokenPunct
)

type token struct {
	text string
	kind tokenKind
}

// tokenize segments text into runs of letters, digits, whitespace, and
// everything else, using Unicode categories only. This is the single
// technique that makes the token step work across scripts.
func tokenize(text string) []token {
	var tokens []token
	var cur []rune
	curKind := tokenPunct
	started := false

	flush := func() {
		if started && len(cur) > 0 {
			tokens = append(tokens, token{text: string(cur), kind: curKind})
		}
		cur = cur[:0]
	}

	for _, r := range text {
		kind := classifyRune(r)
		if !started || kind != curKind {
			flush()
			curKind = kind
			started = true
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

func classifyRune(r rune) tokenKind {
	switch {
	case unicode.IsLetter(r):
		return tokenWord
	case unicode.IsDigit(r):
		return tokenNumber
	case unicode.IsSpace(r):
		return tokenSpace
	default:
		return tokenPunct
	}
}

// normalizeToken produces the counting fingerprint of a token: Unicode
// compatibility normalization, case fold, trim.
func normalizeToken(s string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(s)))
}

func significantToken(tok token) bool {
	if tok.kind != tokenWord && tok.kind != tokenNumber {
		return false
	}
	return len([]rune(normalizeToken(tok.text))) >= 2
}

// collapseTokenRepeats counts significant tokens and, for every token whose
// count reaches the length-scaled threshold, keeps only the configured
// fraction of its occurrences. Removal happens on whole tokens, never on
// substrings inside other words.
func (c *UniversalRepetition) collapseTokenRepeats(text string) string {
	rc := c.cfg.Repetition
	tokens := tokenize(text)

	counts := make(map[string]int)
	for _, tok := range tokens {
		if significantToken(tok) {
			counts[normalizeToken(tok.text)]++
		}
	}

	threshold := rc.TokenBaseThreshold + len([]rune(text))/rc.TokenLengthDivisor

	keepBudget := make(map[string]int)
	for key, count := range counts {
		if count >= threshold {
			keep := int(float64(count) * rc.TokenKeepRatio)
			if keep < 1 {
				keep = 1
			}
			keepBudget[key] = keep
		}
	}
	if len(keepBudget) == 0 {
		return text
	}

	var b strings.Builder
	seen := make(map[string]int)
	dropped := false
	for _, tok := range tokens {
		if significantToken(tok) {
			key := normalizeToken(tok.text)
			if budget, limited := keepBudget[key]; limited {
				seen[key]++
				if seen[key] > budget {
					dropped = true
					continue
				}
			}
		}
		// A dropped token leaves its following whitespace token behind;
		// swallow the duplicate separator instead of emitting it twice.
		if dropped && tok.kind == tokenSpace {
			dropped = false
			continue
		}
		dropped = false
		b.WriteString(tok.text)
	}
	return b.String()
}

// --- step 3: sentence repetition ---

// splitSentences cuts text after universal terminal punctuation, keeping the
// terminator attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	var cur []rune

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur = append(cur, runes[i])
		if isTerminalPunct(runes[i]) {
			// Absorb an immediate terminator run (e.g. "?!", "。。").
			for i+1 < len(runes) && isTerminalPunct(runes[i+1]) {
				i++
				cur = append(cur, runes[i])
			}
			sentences = append(sentences, string(cur))
			cur = cur[:0]
		}
	}
	if len(cur) > 0 {
		sentences = append(sentences, string(cur))
	}
	return sentences
}

// sentenceFingerprint strips punctuation and whitespace and case-folds, so
// trivially re-punctuated duplicates still collide.
func sentenceFingerprint(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKC.String(s) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// collapseSentenceRepeats drops sentences past their repetition allowance.
// Sentences under the minimum length always pass; they are too ambiguous to
// fingerprint safely.
func (c *UniversalRepetition) collapseSentenceRepeats(text string) string {
	rc := c.cfg.Repetition
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return text
	}

	counts := make(map[string]int)
	var b strings.Builder
	for _, sentence := range sentences {
		if len([]rune(strings.TrimSpace(sentence))) < rc.SentenceMinLength {
			b.WriteString(sentence)
			continue
		}
		key := sentenceFingerprint(sentence)
		if key == "" {
			b.WriteString(sentence)
			continue
		}
		counts[key]++
		if counts[key] <= rc.SentenceMaxRepeats {
			b.WriteString(sentence)
		}
	}
	return b.String()
}

// --- step 4: enumeration compression ---

var enumerationSeparators = []string{", ", "、", "，", "; ", "；", "・", "\t", "  "}

// compressEnumerations collapses cyclically repeated separated lists within
// each sentence ("apple, banana, apple, banana, apple, banana" -> "apple,
// banana"), preserving the trailing sentence terminator.
func (c *UniversalRepetition) compressEnumerations(text string) string {
	sentences := splitSentences(text)
	var b strings.Builder
	for _, sentence := range sentences {
		b.WriteString(c.compressEnumeration(sentence))
	}
	return b.String()
}

func (c *UniversalRepetition) compressEnumeration(sentence string) string {
	minRepeat := c.cfg.Repetition.EnumerationMinRepeats

	body := sentence
	var terminator string
	runes := []rune(sentence)
	cut := len(runes)
	for cut > 0 && (isTerminalPunct(runes[cut-1]) || unicode.IsSpace(runes[cut-1])) {
		cut--
	}
	body, terminator = string(runes[:cut]), string(runes[cut:])

	for _, sep := range enumerationSeparators {
		parts := strings.Split(body, sep)
		if len(parts) < 2*minRepeat {
			continue
		}
		group, ok := smallestRepeatingGroup(parts, minRepeat)
		if !ok {
			continue
		}
		return strings.Join(group, sep) + terminator
	}
	return sentence
}

// smallestRepeatingGroup finds the shortest group length g >= 2 such that
// parts is g-periodic (a trailing partial cycle is tolerated) with at least
// minRepeat complete repeats.
func smallestRepeatingGroup(parts []string, minRepeat int) ([]string, bool) {
	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = strings.TrimSpace(p)
	}

	for g := 2; g*minRepeat <= len(parts); g++ {
		periodic := true
		for i := range trimmed {
			if trimmed[i] != trimmed[i%g] {
				periodic = false
				break
			}
		}
		if periodic && len(parts)/g >= minRepeat {
			return parts[:g], true
		}
	}
	return nil, false
}

// --- step 5: paragraph repetition ---

// dedupeParagraphs keeps the first paragraph per head fingerprint and drops
// exact-fingerprint repeats entirely.
func (c *UniversalRepetition) dedupeParagraphs(text string) string {
	headChars := c.cfg.Repetition.ParagraphHeadChars
	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) < 2 {
		return text
	}

	seen := make(map[string]bool)
	var kept []string
	for _, paragraph := range paragraphs {
		if strings.TrimSpace(paragraph) == "" {
			kept = append(kept, paragraph)
			continue
		}
		head := []rune(sentenceFingerprint(paragraph))
		if len(head) > headChars {
			head = head[:headChars]
		}
		key := string(head)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, paragraph)
	}
	return strings.Join(kept, "\n\n")
}

// --- step 6: degenerating tail ---

// trimDegenerateTail inspects the trailing window for hallucination signs:
// low lexical diversity or contiguously repeated substrings. A degenerate
// tail is cut at the last sentence terminator before the window rather than
// repaired in place.
func (c *UniversalRepetition) trimDegenerateTail(text string) string {
	rc := c.cfg.Repetition
	runes := []rune(text)
	if len(runes) < rc.TailMinTextLength {
		return text
	}

	start := len(runes) - rc.TailWindow
	if start < 0 {
		start = 0
	}
	tail := string(runes[start:])

	diversity := lexicalDiversity(tail)
	runs := repeatedRunCount(tail)
	if diversity >= rc.TailMinDiversity && runs < 2 {
		return text
	}

	for i := start - 1; i >= 0; i-- {
		if isTerminalPunct(runes[i]) {
			return string(runes[:i+1])
		}
	}
	return text
}

// lexicalDiversity is unique significant tokens over total significant
// tokens. A healthy tail sits well above 0.3; a loop of the same fragment
// collapses toward zero. Returns 1 for an empty tail.
func lexicalDiversity(text string) float64 {
	unique := make(map[string]struct{})
	total := 0
	for _, tok := range tokenize(text) {
		if !significantToken(tok) {
			continue
		}
		total++
		unique[normalizeToken(tok.text)] = struct{}{}
	}
	if total == 0 {
		return 1
	}
	return float64(len(unique)) / float64(total)
}

// repeatedRunCount counts positions where a substring of length 2..20 is
// immediately repeated at least three times in a row.
func repeatedRunCount(text string) int {
	runes := []rune(text)
	count := 0

	i := 0
	for i < len(runes) {
		matched := 0
		for l := tailRunMinLen; l <= tailRunMaxLen && i+l*tailRunRepeats <= len(runes); l++ {
			repeats := 1
			for string(runes[i+repeats*l:i+(repeats+1)*l]) == string(runes[i:i+l]) {
				repeats++
				if i+(repeats+1)*l > len(runes) {
					break
				}
			}
			if repeats >= tailRunRepeats {
				matched = repeats * l
				break
			}
		}
		if matched > 0 {
			count++
			i += matched
			continue
		}
		i++
	}
	return count
}

// --- step 7: final cleanup ---

func finalCleanup(text string) string {
	text = strings.ReplaceAll(text, "�", "")
	text = excessNewlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
