// Package config loads the voicenotes YAML configuration file: API access,
// cleaning thresholds, dictionary rules, and notes delivery. Command-line
// flags override anything loaded here.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mfell/voicenotes/internal/cleaning"
	"github.com/mfell/voicenotes/internal/correct"
)

// envAPIKey is consulted when the config file carries no key.
const envAPIKey = "OPENAI_API_KEY"

type Config struct {
	API        APIConfig       `yaml:"api"`
	Cleaning   cleaning.Config `yaml:"cleaning"`
	Dictionary []correct.Rule  `yaml:"dictionary"`
	Notes      NotesConfig     `yaml:"notes"`
}

type APIConfig struct {
	Key            string `yaml:"key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type NotesConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Model:          "whisper-1",
			TimeoutSeconds: 120,
		},
		Cleaning: cleaning.DefaultConfig(),
	}
}

// Load reads the YAML configuration at path. A missing file is not an
// error; the defaults come back instead so the tool works unconfigured.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r. Unknown keys are rejected so
// typos surface instead of silently doing nothing.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// ResolveKey returns the API key from the config file or, failing that,
// from the environment.
func (c *Config) ResolveKey() string {
	if c.API.Key != "" {
		return c.API.Key
	}
	return os.Getenv(envAPIKey)
}

// starter is the commented template written by `voicenotes setup`.
const starter = `# voicenotes configuration
api:
  # key: sk-...            # falls back to $OPENAI_API_KEY
  # base_url: https://api.openai.com/v1
  model: whisper-1
  timeout_seconds: 120

# cleaning thresholds; the defaults are sensible, tune with care
# cleaning:
#   warn_reduction: 0.5
#   emergency_reduction: 0.7
#   max_stage_reduction: 0.6

# literal find/replace rules applied after cleaning
# dictionary:
#   - from: cube control
#     to: kubectl

# notes:
#   dir: ~/notes
`

// WriteStarter creates a starter config at path unless one already exists.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starter), 0o600); err != nil {
		return fmt.Errorf("write starter config: %w", err)
	}
	return nil
}
