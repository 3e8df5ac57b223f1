package transcribe

import (
	"strings"

	"github.com/mfell/voicenotes/internal/cleaning"
)

// BuildPrompt composes the transcription instruction sent alongside the
// audio: the per-language instruction sentences plus the wrapper envelope
// the model should put the transcript in. The cleaning package shares the
// same tables, so whatever leaks back into the response is exactly what the
// contamination cleaner knows how to strip.
func BuildPrompt(lang string) string {
	var b strings.Builder
	for _, phrase := range cleaning.InstructionFor(lang) {
		b.WriteString(phrase)
		b.WriteString("\n")
	}
	b.WriteString(cleaning.FormatLabelFor(lang))
	b.WriteString(":\n")
	b.WriteString(cleaning.WrapperOpen)
	b.WriteString("\n...\n")
	b.WriteString(cleaning.WrapperClose)
	return b.String()
}
