package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "SCRIBE_"

// applyEnv overlays SCRIBE_* environment variables on the loaded file.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"EMBEDDING_HOST":  &c.AI.EmbeddingHost,
		"GENERATOR_HOST":  &c.AI.GeneratorHost,
		"EMBEDDING_MODEL": &c.AI.EmbeddingModel,
		"GENERATOR_MODEL": &c.AI.GeneratorModel,
		"API_KEY":         &c.AI.APIKey,
		"STORAGE_BACKEND": &c.Storage.Backend,
		"STORAGE_PATH":    &c.Storage.Path,
		"CHROMA_URL":      &c.Storage.ChromaURL,
		"COLLECTION":      &c.Storage.Collection,
		"TEMPLATE":        &c.Pipeline.TemplatePath,
		"BIND":            &c.Server.Bind,
		"WATCH_DIR":       &c.Server.WatchDir,
		"UPLOAD_DIR":      &c.Server.UploadDir,
		"LOG_LEVEL":       &c.Logging.Level,
		"LOG_FORMAT":      &c.Logging.Format,
		"LOG_FILE":        &c.Logging.File,
	}
	for key, target := range strs {
		if value, ok := os.LookupEnv(envPrefix + key); ok {
			*target = strings.TrimSpace(value)
		}
	}

	ints := map[string]*int{
		"MAX_TOOL_ROUNDS":       &c.Pipeline.MaxToolRounds,
		"MAX_CORRECTION_ROUNDS": &c.Pipeline.MaxCorrectionRounds,
		"RUN_TIMEOUT_SECONDS":   &c.Pipeline.RunTimeoutSeconds,
		"RETRY_MAX_ATTEMPTS":    &c.Retry.MaxAttempts,
	}
	for key, target := range ints {
		value, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*target = n
	}

	if value, ok := os.LookupEnv(envPrefix + "TEMPERATURE"); ok {
		t, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%sTEMPERATURE: %w", envPrefix, err)
		}
		c.AI.Temperature = t
	}
	if value, ok := os.LookupEnv(envPrefix + "WEB_SEARCH"); ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%sWEB_SEARCH: %w", envPrefix, err)
		}
		c.WebSearch.Enabled = enabled
	}
	if c.AI.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.AI.APIKey = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAI()
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if strings.TrimSpace(c.Storage.Collection) == "" {
		c.Storage.Collection = defaultCollection
	}
	c.Retry.Backoff = strings.ToLower(strings.TrimSpace(c.Retry.Backoff))
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Storage.Path, err = expandPath(c.Storage.Path); err != nil {
		return fmt.Errorf("storage.path: %w", err)
	}
	if c.Pipeline.TemplatePath, err = expandPath(c.Pipeline.TemplatePath); err != nil {
		return fmt.Errorf("pipeline.template_path: %w", err)
	}
	if c.Server.UploadDir, err = expandPath(c.Server.UploadDir); err != nil {
		return fmt.Errorf("server.upload_dir: %w", err)
	}
	if c.Server.WatchDir, err = expandPath(c.Server.WatchDir); err != nil {
		return fmt.Errorf("server.watch_dir: %w", err)
	}
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeAI() {
	aiConfig := c.AIConfig()
	aiConfig.Normalize()
	c.AI.EmbeddingHost = aiConfig.EmbeddingHost
	c.AI.GeneratorHost = aiConfig.GeneratorHost
	c.AI.APIKey = aiConfig.APIKey
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
