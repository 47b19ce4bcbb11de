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


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/scribe"
	"github.com/poiesic/scribe/config"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "scribe",
		Usage: "Turn session transcripts into structured reports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default ~/.config/scribe/config.toml)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to a rotating file instead of stderr",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			runCommand(),
			regenerateCommand(),
			searchCommand(),
			serveCommand(),
			watchCommand(),
			reindexCommand(),
			configCommand(),
		},
	}
}

// setup loads configuration and installs the process logger. Flags override
// the configured log settings.
func setup(c *cli.Context) error {
	if c.Args().First() == "config" {
		return setupLogger(c.String("log-level"), "", "text")
	}
	cfg, path, exists, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logFile := cfg.Logging.File
	if c.IsSet("log-file") {
		logFile = c.String("log-file")
	}
	if err := setupLogger(level, logFile, cfg.Logging.Format); err != nil {
		return err
	}
	if !exists {
		slog.Debug("no config file found, using defaults", "path", path)
	}
	c.App.Metadata = map[string]any{configKey: cfg}
	return nil
}

func setupLogger(levelStr, logFile, format string) error {
	levelStr = strings.ToLower(levelStr)

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	var out io.Writer = os.Stderr
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadedConfig(c *cli.Context) (*config.Config, error) {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// openEngine builds an engine from the loaded configuration.
func openEngine(c *cli.Context) (*scribe.Engine, error) {
	cfg, err := loadedConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	engine, err := scribe.NewEngine(cfg, scribe.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}
