package transcribe

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mfell/voicenotes/internal/cleaning"
	"github.com/mfell/voicenotes/internal/correct"
)

// PostProcessor turns a raw transcription response into the final
// transcript: mechanical wrapper strip, cleaning pipeline, dictionary
// corrections. Without a pipeline it falls back to a minimal legacy
// cleanup, so a transcript always comes out.
type PostProcessor struct {
	pipeline  *cleaning.Pipeline
	corrector *correct.Corrector
	log       *zap.Logger
}

func NewPostProcessor(pipeline *cleaning.Pipeline, corrector *correct.Corrector, log *zap.Logger) *PostProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostProcessor{pipeline: pipeline, corrector: corrector, log: log}
}

// Process runs the full post-processing chain and returns the transcript
// plus the cleaning report.
func (p *PostProcessor) Process(ctx context.Context, raw, lang string) (string, cleaning.Report) {
	// Pre-strip the wrapper envelope so the pipeline's ratio baselines are
	// computed on response content, not on markup the caller asked for.
	text := StripWrapper(raw)

	var report cleaning.Report
	if p.pipeline != nil {
		outcome := p.pipeline.Execute(ctx, text, lang, nil)
		text = outcome.FinalText
		report = outcome.Report
	} else {
		text = legacyClean(text)
	}

	if p.corrector != nil {
		corrected, applied := p.corrector.Apply(text)
		if len(applied) > 0 {
			p.log.Debug("dictionary corrections applied", zap.Int("rules", len(applied)))
		}
		text = corrected
	}

	return text, report
}

var legacyTagRe = regexp.MustCompile(`(?i)</?[a-z][a-z0-9_-]*\s*/?>`)
var legacySpaceRe = regexp.MustCompile(`\n{3,}`)

// legacyClean is the pre-pipeline cleanup path: strip markup, collapse
// blank runs, trim. Kept deliberately dumb.
func legacyClean(text string) string {
	text = legacyTagRe.ReplaceAllString(text, "")
	text = legacySpaceRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripWrapper removes a complete wrapper envelope, keeping only its
// interior, or everything after a lone opening tag when the response was
// truncated. Text without wrapper tags passes through unchanged.
func StripWrapper(text string) string {
	open := strings.Index(text, cleaning.WrapperOpen)
	if open == -1 {
		return text
	}
	rest := text[open+len(cleaning.WrapperOpen):]
	if close := strings.Index(rest, cleaning.WrapperClose); close != -1 {
		return strings.TrimSpace(rest[:close])
	}
	return strings.TrimSpace(rest)
}
