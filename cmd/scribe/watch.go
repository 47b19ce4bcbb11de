package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/scribe/ingestion"
	"github.com/poiesic/scribe/workflow"
	"github.com/urfave/cli/v2"
)

const reportSuffix = ".report.json"

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Generate a report for every transcript dropped into a directory",
		Action: watchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory to watch (defaults to server.watch_dir)",
			},
			&cli.StringFlag{
				Name:     "tenant",
				Aliases:  []string{"t"},
				Usage:    "Tenant that owns dropped transcripts",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "Report template; defaults to the configured template",
			},
			&cli.DurationFlag{
				Name:  "settle",
				Usage: "Quiet period before a changed file is processed",
				Value: 2 * time.Second,
			},
		},
	}
}

func watchAction(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	dir := cfg.Server.WatchDir
	if c.IsSet("dir") {
		dir = c.String("dir")
	}
	if dir == "" {
		return fmt.Errorf("no watch directory: pass --dir or set server.watch_dir")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	w := &dropWatcher{
		pipeline:   engine,
		tenantID:   c.String("tenant"),
		template:   c.String("template"),
		settle:     c.Duration("settle"),
		extensions: ingestion.DefaultRegistry().Supported(),
		logger:     slog.Default().With("component", "watch", "dir", dir),
	}
	return w.Watch(c.Context, dir)
}

// dropWatcher runs the pipeline for files created or modified in a
// directory and writes each report beside its transcript.
type dropWatcher struct {
	pipeline   pipeline
	tenantID   string
	template   string
	settle     time.Duration
	extensions []string
	logger     *slog.Logger
}

// Watch blocks until ctx is done.
func (w *dropWatcher) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ready := make(chan string, 16)
	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.settle)
			return
		}
		timers[path] = time.AfterFunc(w.settle, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	w.logger.Info("watching for transcripts", "extensions", w.extensions)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if w.accepts(event.Name) {
				schedule(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		case path := <-ready:
			w.process(ctx, path)
		}
	}
}

func (w *dropWatcher) accepts(path string) bool {
	if strings.HasSuffix(path, reportSuffix) || strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

func (w *dropWatcher) process(ctx context.Context, path string) {
	logger := w.logger.With("source", path)
	state, err := w.pipeline.Run(ctx, workflow.Request{
		SourceRef:   path,
		TemplateRef: w.template,
		TenantID:    w.tenantID,
	})
	if err != nil {
		logger.Error("run failed", "run", state.RunID, "err", err)
		return
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + reportSuffix
	if err := writeJSON(out, state.Report); err != nil {
		logger.Error("error writing report", "err", err)
		return
	}
	logger.Info("report written", "run", state.RunID, "report", out, "warnings", len(state.Warnings()))
}
