package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const defaultModel = "whisper-1"

// Option is a functional option for configuring the OpenAI engine.
type Option func(*openAIConfig)

type openAIConfig struct {
	model   string
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// WithModel selects the transcription model (e.g. "whisper-1",
// "gpt-4o-transcribe").
func WithModel(model string) Option {
	return func(c *openAIConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API base URL, for OpenAI-compatible servers.
func WithBaseURL(url string) Option {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// WithLogger attaches a logger; the default is a no-op.
func WithLogger(log *zap.Logger) Option {
	return func(c *openAIConfig) {
		if log != nil {
			c.logger = log
		}
	}
}

// OpenAI implements Engine against the OpenAI audio transcriptions API.
type OpenAI struct {
	client oai.Client
	model  string
	log    *zap.Logger
}

var _ Engine = (*OpenAI)(nil)

// NewOpenAI constructs the engine. apiKey must be non-empty.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("transcribe: api key must not be empty")
	}

	cfg := &openAIConfig{model: defaultModel, logger: zap.NewNop()}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAI{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		log:    cfg.logger,
	}, nil
}

// Transcribe uploads the audio file and returns the raw response text. The
// response is not cleaned here; that is the post-processor's job.
func (o *OpenAI) Transcribe(ctx context.Context, req Request) (string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(o.model),
		File:  f,
	}
	if req.Language != "" && req.Language != "auto" {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	started := time.Now()
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	o.log.Debug("transcription response received",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("chars", len(resp.Text)))

	return resp.Text, nil
}
