// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/retry"
)

//go:embed sample_config.toml
var sampleConfig string

// Config is the complete scribe configuration.
type Config struct {
	AI        AI        `toml:"ai"`
	Storage   Storage   `toml:"storage"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Retry     Retry     `toml:"retry"`
	WebSearch WebSearch `toml:"web_search"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
}

// AI configures the OpenAI-compatible embedding and chat endpoints.
type AI struct {
	EmbeddingHost  string  `toml:"embedding_host" validate:"required,url"`
	GeneratorHost  string  `toml:"generator_host" validate:"required,url"`
	EmbeddingModel string  `toml:"embedding_model" validate:"required"`
	GeneratorModel string  `toml:"generator_model" validate:"required"`
	APIKey         string  `toml:"api_key"`
	Temperature    float64 `toml:"temperature" validate:"gte=0,lte=2"`
}

// Storage selects and configures the vector index.
type Storage struct {
	Backend       string  `toml:"backend" validate:"oneof=badger chroma"`
	Path          string  `toml:"path" validate:"required_if=Backend badger"`
	ChromaURL     string  `toml:"chroma_url" validate:"required_if=Backend chroma,omitempty,url"`
	Collection    string  `toml:"collection" validate:"required"`
	MinSimilarity float32 `toml:"min_similarity" validate:"gte=0,lte=1"`
}

// Pipeline holds the per-stage tuning knobs.
type Pipeline struct {
	TemplatePath        string `toml:"template_path"`
	ChunkSize           int    `toml:"chunk_size" validate:"gt=0"`
	ChunkOverlap        int    `toml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	SummaryWorkers      int    `toml:"summary_workers" validate:"gt=0"`
	ReviewWorkers       int    `toml:"review_workers" validate:"gt=0"`
	MaxQueries          int    `toml:"max_queries" validate:"gt=0"`
	ResultsPerQuery     int    `toml:"results_per_query" validate:"gt=0"`
	MaxToolRounds       int    `toml:"max_tool_rounds" validate:"gt=0"`
	RetrievalLimit      int    `toml:"retrieval_limit" validate:"gt=0"`
	MaxCorrectionRounds int    `toml:"max_correction_rounds" validate:"gte=0"`
	RunTimeoutSeconds   int    `toml:"run_timeout_seconds" validate:"gte=0"`
}

// Retry bounds store connection attempts.
type Retry struct {
	MaxAttempts int    `toml:"max_attempts" validate:"gt=0"`
	BaseDelayMs int    `toml:"base_delay_ms" validate:"gte=0"`
	MaxDelayMs  int    `toml:"max_delay_ms" validate:"gte=0"`
	Backoff     string `toml:"backoff" validate:"oneof=exponential constant"`
}

// WebSearch configures the DuckDuckGo searcher used by research and drafting.
type WebSearch struct {
	Enabled         bool   `toml:"enabled"`
	MaxResults      int    `toml:"max_results" validate:"gt=0"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds" validate:"gte=0"`
	UserAgent       string `toml:"user_agent"`
}

// Server configures the HTTP adapter.
type Server struct {
	Bind      string `toml:"bind" validate:"required,hostname_port"`
	UploadDir string `toml:"upload_dir" validate:"required"`
	WatchDir  string `toml:"watch_dir"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
	File   string `toml:"file"`
}

// DefaultConfigPath returns the expanded default configuration path.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// SampleConfig returns a commented configuration file with every default.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has overrides applied and paths expanded. A missing file is not an
// error; defaults are used instead.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// AIConfig converts the AI section into provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// RetryPolicy converts the retry section into a policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		Backoff:     retry.Exponential,
	}
	if c.Retry.Backoff == "constant" {
		p.Backoff = retry.Constant
	}
	return p
}

// RunTimeout returns the whole-run deadline. Zero means none.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Pipeline.RunTimeoutSeconds) * time.Second
}

// CacheTTL returns how long web search results are cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.WebSearch.CacheTTLSeconds) * time.Second
}

// EnsureDirectories creates the directories the configured backend needs.
func (c *Config) EnsureDirectories() error {
	if c.Storage.Backend == "badger" {
		if err := os.MkdirAll(c.Storage.Path, 0o755); err != nil {
			return fmt.Errorf("create index directory %q: %w", c.Storage.Path, err)
		}
	}
	if err := os.MkdirAll(c.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload directory %q: %w", c.Server.UploadDir, err)
	}
	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	return nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
