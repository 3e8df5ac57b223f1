package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mfell/voicenotes/internal/cleaning"
	"github.com/mfell/voicenotes/internal/clipboard"
	"github.com/mfell/voicenotes/internal/correct"
	"github.com/mfell/voicenotes/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var copyToClipboard bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeAudio
			}

			copyFn := app.copyFn
			if copyFn == nil {
				copyFn = clipboard.CopyText
			}

			transcript, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), transcript)
			if isBlankTranscript(transcript) {
				app.log().Warn(noSpeechHint())
			}

			if notePath, err := app.saveTranscriptNote(transcript); err != nil {
				app.log().Warn("failed to save note", zap.Error(err))
			} else if notePath != "" {
				app.log().Info("note saved", zap.String("path", notePath))
			}

			if copyToClipboard {
				if isBlankTranscript(transcript) && !app.copyEmpty {
					return nil
				}

				if err := copyFn(cmd.Context(), transcript); err != nil {
					return err
				}
				app.log().Info("transcript copied to clipboard")
			}
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindAPIFlags(cmd, app)
	bindLanguageFlag(cmd, app)
	bindCopyAndSilenceFlags(cmd, app)
	bindNotesFlags(cmd, app)
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy transcript to clipboard")
	return cmd
}

func (a *appState) transcribeAudio(ctx context.Context, audioPath string) (string, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}

	if transcript, skipped, err := a.silenceGateTranscript(audioPath); err != nil {
		return "", err
	} else if skipped {
		return transcript, nil
	}

	cfg, err := a.conf()
	if err != nil {
		return "", err
	}

	engine, err := a.newEngine()
	if err != nil {
		return "", err
	}

	a.log().Info("transcribing...", zap.String("audio", audioPath), zap.String("model", cfg.API.Model), zap.String("language", a.language))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	raw, err := engine.Transcribe(ctx, transcribe.Request{
		AudioPath: audioPath,
		Language:  a.language,
		Prompt:    transcribe.BuildPrompt(a.language),
	})
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

	transcript, report := a.newPostProcessor().Process(ctx, raw, a.language)
	a.logCleaningReport(report)

	return transcript, nil
}

func (a *appState) newEngine() (transcribe.Engine, error) {
	cfg, err := a.conf()
	if err != nil {
		return nil, err
	}

	return transcribe.NewOpenAI(cfg.ResolveKey(),
		transcribe.WithModel(cfg.API.Model),
		transcribe.WithBaseURL(cfg.API.BaseURL),
		transcribe.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
		transcribe.WithLogger(a.log()),
	)
}

// newPostProcessor wires the cleaning pipeline and the dictionary corrector
// from the loaded configuration. Falls back to a pipeline-less processor
// when the config could not be loaded, so raw text still comes through.
func (a *appState) newPostProcessor() *transcribe.PostProcessor {
	cfg, err := a.conf()
	if err != nil {
		a.log().Warn("config unavailable; skipping transcript cleaning", zap.Error(err))
		return transcribe.NewPostProcessor(nil, nil, a.log())
	}

	pipeline := cleaning.NewDefaultPipeline(cfg.Cleaning, a.log())
	corrector := correct.New(cfg.Dictionary, a.log())
	return transcribe.NewPostProcessor(pipeline, corrector, a.log())
}

func (a *appState) logCleaningReport(report cleaning.Report) {
	for _, stage := range report.Stages {
		for _, issue := range stage.Issues {
			a.log().Warn("cleaning issue", zap.String("cleaner", stage.Cleaner), zap.String("issue", issue))
		}
	}
	a.log().Debug("cleaning finished",
		zap.Int("original_length", report.OriginalLength),
		zap.Int("final_length", report.FinalLength),
		zap.Float64("reduction_ratio", report.ReductionRatio),
		zap.Int("stages", len(report.Stages)),
	)
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
