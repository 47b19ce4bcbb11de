package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func regenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "regenerate",
		Usage:     "Rewrite a report section according to an instruction",
		ArgsUsage: "[content file, or - for stdin]",
		Action:    regenerateAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Aliases:  []string{"t"},
				Usage:    "Tenant whose indexed transcripts ground the rewrite",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "instruction",
				Aliases:  []string{"i"},
				Usage:    "How to change the content, e.g. \"make it shorter\"",
				Required: true,
			},
		},
	}
}

func regenerateAction(c *cli.Context) error {
	content, err := readContent(c.Args().First())
	if err != nil {
		return err
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := engine.RegenerateSection(c.Context, content, c.String("instruction"), c.String("tenant"))
	if err != nil {
		return fmt.Errorf("regeneration failed: %w", err)
	}
	fmt.Fprintln(c.App.Writer, out)
	return nil
}

func readContent(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("content is empty")
	}
	return content, nil
}
