// Package transcribe sends recorded audio to a cloud speech-to-text API and
// post-processes the raw response through the cleaning pipeline and the
// dictionary corrector.
package transcribe

import "context"

type Request struct {
	AudioPath string
	Language  string
	Prompt    string
}

type Engine interface {
	Transcribe(ctx context.Context, req Request) (string, error)
}
