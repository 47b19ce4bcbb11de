package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/workflow"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Generate a report from a transcript",
		ArgsUsage: "<transcript>",
		Action:    runAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Aliases:  []string{"t"},
				Usage:    "Tenant that owns the transcript",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "Report template (JSON or YAML); defaults to the configured template",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report JSON to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "state",
				Usage: "Write the full run state instead of just the report",
			},
		},
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one transcript path")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	state, err := engine.Run(c.Context, workflow.Request{
		SourceRef:   c.Args().First(),
		TemplateRef: c.String("template"),
		TenantID:    c.String("tenant"),
	})
	if err != nil {
		return fmt.Errorf("run %s failed at %s: %w", state.RunID, lastStage(state), err)
	}

	var payload any = state.Report
	if c.Bool("state") {
		payload = state
	}
	if err := writeJSON(c.String("output"), payload); err != nil {
		return err
	}
	printRunSummary(os.Stderr, state)
	return nil
}

func lastStage(state core.PipelineState) string {
	if len(state.Trace) == 0 {
		return "start"
	}
	return state.Trace[len(state.Trace)-1].Stage
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printRunSummary(w io.Writer, state core.PipelineState) {
	schema := state.ActiveSchema()
	rows := make([][]string, 0, len(state.ReviewNotes))
	for _, name := range schema.SectionNames() {
		note, ok := state.ReviewNotes[name]
		if !ok {
			continue
		}
		verdict := note.Verdict
		if verdict == "" {
			verdict = truncate(note.Suggestion, 60)
		}
		rows = append(rows, []string{name, strconv.Itoa(note.Score), verdict})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Section", "Score", "Review"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	}
	for _, warning := range state.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintf(w, "run %s %s (%d sections)\n", state.RunID, state.Status, len(state.Report))
}
