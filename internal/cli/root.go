package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mfell/voicenotes/internal/audio"
	"github.com/mfell/voicenotes/internal/clipboard"
	"github.com/mfell/voicenotes/internal/config"
	"github.com/mfell/voicenotes/internal/logging"
	"github.com/mfell/voicenotes/internal/platform"
	"github.com/mfell/voicenotes/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose     bool
	jsonLogs    bool
	noProgress  bool
	configPath  string
	model       string
	baseURL     string
	language    string
	backend     string
	input       string
	inputFormat string
	copyEmpty   bool
	silenceGate bool
	silenceDBFS float64
	duration    time.Duration
	immediate   bool
	notesDir    string
	saveNote    bool

	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
	out    io.Writer

	preflightFn  func(ctx context.Context) error
	recordFn     func(ctx context.Context, opts recordOptions) (string, error)
	transcribeFn func(ctx context.Context, audioPath string) (string, error)
	copyFn       func(ctx context.Context, value string) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		language:    "auto",
		backend:     "auto",
		silenceGate: true,
		silenceDBFS: -65,
		now:         time.Now,
		out:         os.Stdout,
	}
	app.preflightFn = app.ensureTranscriptionReady
	app.recordFn = app.recordAudio
	app.transcribeFn = app.transcribeAudio
	app.copyFn = clipboard.CopyText

	cmd := &cobra.Command{
		Use:           "voicenotes",
		Short:         "Record, transcribe, and clean voice notes via a cloud speech API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.language = sanitizeLanguage(app.language)
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runDefault(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindAPIFlags(cmd, app)
	bindLanguageFlag(cmd, app)
	bindRecordingBackendFlags(cmd, app)
	bindCopyAndSilenceFlags(cmd, app)
	bindNotesFlags(cmd, app)
	cmd.Flags().DurationVar(&app.duration, "duration", 0, "Record duration, e.g. 10s; 0 means interactive start/stop")
	cmd.Flags().BoolVar(&app.immediate, "immediate", false, "Start recording immediately without waiting for Enter")

	cmd.AddCommand(newRecordCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newCleanCmd(app))
	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindAPIFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.configPath, "config", app.configPath, "Path to the config file")
	cmd.Flags().StringVar(&app.model, "model", app.model, "Transcription model (overrides config)")
	cmd.Flags().StringVar(&app.baseURL, "base-url", app.baseURL, "API base URL for OpenAI-compatible servers (overrides config)")
}

func bindLanguageFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|ja|zh|ko|...) for transcription")
}

func bindRecordingBackendFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.backend, "backend", app.backend, "Recording backend: auto|pw-record|arecord|ffmpeg")
	cmd.Flags().StringVar(&app.input, "input", app.input, "Input device (run \"voicenotes devices\" to list); e.g. node-ID (pw-record), hw:1,0 (arecord), :1 (ffmpeg)")
	cmd.Flags().StringVar(&app.inputFormat, "input-format", app.inputFormat, "Input format for ffmpeg backend (pulse|alsa)")
}

func bindCopyAndSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.copyEmpty, "copy-empty", app.copyEmpty, "Copy blank transcripts to clipboard")
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent WAV audio and skip transcription")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func bindNotesFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.saveNote, "save-note", app.saveNote, "Save the transcript as a timestamped note file")
	cmd.Flags().StringVar(&app.notesDir, "notes-dir", app.notesDir, "Directory for saved notes (overrides config)")
}

// conf loads and caches the configuration, applying flag overrides on top.
func (a *appState) conf() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	path, err := platform.ResolveConfigPath(a.configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if a.model != "" {
		cfg.API.Model = a.model
	}
	if a.baseURL != "" {
		cfg.API.BaseURL = a.baseURL
	}
	if a.notesDir != "" {
		cfg.Notes.Dir = a.notesDir
	}

	a.cfg = cfg
	return cfg, nil
}

func (a *appState) ensureTranscriptionReady(_ context.Context) error {
	cfg, err := a.conf()
	if err != nil {
		return err
	}
	if cfg.ResolveKey() == "" {
		return errors.New("no API key configured; set OPENAI_API_KEY or add api.key to the config (run `voicenotes setup` to create one)")
	}
	return nil
}

func (a *appState) runDefault(ctx context.Context) error {
	preflightFn := a.preflightFn
	if preflightFn == nil {
		preflightFn = a.ensureTranscriptionReady
	}

	recordFn := a.recordFn
	if recordFn == nil {
		recordFn = a.recordAudio
	}

	transcribeFn := a.transcribeFn
	if transcribeFn == nil {
		transcribeFn = a.transcribeAudio
	}

	copyFn := a.copyFn
	if copyFn == nil {
		copyFn = clipboard.CopyText
	}

	if err := preflightFn(ctx); err != nil {
		return err
	}

	audioPath, err := recordFn(ctx, recordOptions{duration: a.duration, input: a.input, format: a.inputFormat})
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil {
			a.log().Warn("failed to remove recording", zap.String("path", audioPath), zap.Error(err))
		}
	}()

	transcript, skipped, err := a.silenceGateTranscript(audioPath)
	if err != nil {
		return err
	}
	if !skipped {
		transcript, err = transcribeFn(ctx, audioPath)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(a.outWriter(), transcript)
	if isBlankTranscript(transcript) {
		a.log().Warn(noSpeechHint())
		if !a.copyEmpty {
			return nil
		}
	}

	if notePath, err := a.saveTranscriptNote(transcript); err != nil {
		a.log().Warn("failed to save note", zap.Error(err))
	} else if notePath != "" {
		a.log().Info("note saved", zap.String("path", notePath))
	}

	if err := copyFn(ctx, transcript); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return nil
		}
		a.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
		return nil
	}

	a.log().Info("transcript copied to clipboard")
	return nil
}

// saveTranscriptNote writes the transcript into the notes directory when
// note saving is enabled. Returns the written path, or "" when disabled.
func (a *appState) saveTranscriptNote(transcript string) (string, error) {
	cfg, err := a.conf()
	if err != nil {
		return "", err
	}
	if !a.saveNote && cfg.Notes.Dir == "" {
		return "", nil
	}

	dir, err := platform.ResolveNotesDir(cfg.Notes.Dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create notes directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("note-%s.md", a.now().Format("20060102-150405")))
	if err := os.WriteFile(path, []byte(transcript+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write note %s: %w", path, err)
	}
	return path, nil
}

func (a *appState) recordingOutputPath(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		if err := os.MkdirAll(filepath.Dir(override), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return override, nil
	}

	recordingDir, err := platform.ResolveRecordingDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(recordingDir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory %s: %w", recordingDir, err)
	}

	return filepath.Join(recordingDir, fmt.Sprintf("recording-%s.wav", a.now().Format("20060102-150405"))), nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) silenceGateTranscript(audioPath string) (string, bool, error) {
	if !a.silenceGate {
		return "", false, nil
	}

	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		return "", false, nil
	}

	silent, metrics, err := audio.IsSilentWAV(audioPath, a.silenceDBFS)
	if err != nil {
		a.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", audioPath))
		return "", false, nil
	}

	if !silent {
		return "", false, nil
	}

	a.log().Info(
		"audio considered silent; skipping transcription",
		zap.String("audio", audioPath),
		zap.Float64("rms_dbfs", metrics.RMSdBFS),
		zap.Float64("peak_dbfs", metrics.PeakdBFS),
		zap.Float64("threshold_dbfs", a.silenceDBFS),
	)

	return blankAudioToken, true, nil
}
