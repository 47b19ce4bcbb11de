package main

import (
	"fmt"
	"os"
	"time"

	"github.com/poiesic/scribe/reindex"
	"github.com/poiesic/scribe/retry"
	"github.com/urfave/cli/v2"
)

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:   "reindex",
		Usage:  "Re-embed indexed segments with the configured embedding model",
		Action: reindexAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "tenant",
				Aliases: []string{"t"},
				Usage:   "Only reindex this tenant (default: every tenant)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of records to process in each batch",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per batch",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
	}
}

func reindexAction(c *cli.Context) error {
	reindexConfig, err := reindexConfigFromFlags(c)
	if err != nil {
		return err
	}
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	reindexer, err := engine.Reindexer(reindexConfig, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Index: %s\n", cfg.Storage.Path)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	if _, err := reindexer.Run(c.Context, c.String("tenant")); err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	return nil
}

func reindexConfigFromFlags(c *cli.Context) (*reindex.Config, error) {
	if c.Int("batch-size") <= 0 {
		return nil, fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return nil, fmt.Errorf("max-retries must be greater than 0")
	}
	return &reindex.Config{
		BatchSize: c.Int("batch-size"),
		Retry: retry.Policy{
			MaxAttempts: c.Int("max-retries"),
			BaseDelay:   c.Duration("retry-delay"),
			Backoff:     retry.Exponential,
		},
	}, nil
}
