package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/ingestion"
	"github.com/poiesic/scribe/retrieval"
	"github.com/urfave/cli/v2"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a tenant's indexed transcripts",
		ArgsUsage: "<query>",
		Action:    searchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Aliases:  []string{"t"},
				Usage:    "Tenant to search",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"k"},
				Usage:   "Maximum number of hits",
				Value:   5,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show query expansions and per-query hits",
			},
		},
	}
}

func searchAction(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	var monitor retrieval.SearchMonitor
	if c.Bool("verbose") {
		monitor = &printMonitor{w: c.App.ErrWriter}
	}
	results, err := engine.Search(c.Context, c.String("tenant"), query, c.Int("limit"), monitor)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	if len(results) > 0 {
		fmt.Fprintln(c.App.Writer, renderResults(results))
	}
	return nil
}

func renderResults(results []*core.SearchResult) string {
	rows := make([][]string, 0, len(results))
	for i, hit := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", hit.Score),
			filepath.Base(hit.Record.Metadata[ingestion.MetaSource]),
			truncate(strings.Join(strings.Fields(hit.Record.Text), " "), 70),
		})
	}
	return renderTable(
		[]string{"#", "Score", "Source", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft})
}

// printMonitor narrates a multi-query search.
type printMonitor struct {
	w io.Writer
}

var _ retrieval.SearchMonitor = (*printMonitor)(nil)

func (m *printMonitor) Start(tenantID, query string) {
	fmt.Fprintf(m.w, "searching %s for %q\n", tenantID, query)
}

func (m *printMonitor) AfterExpansion(queries []string) {
	for _, q := range queries {
		fmt.Fprintf(m.w, "  query: %s\n", q)
	}
}

func (m *printMonitor) AfterQuery(query string, results []*core.SearchResult) {
	fmt.Fprintf(m.w, "  %d hits for %q\n", len(results), query)
}

func (m *printMonitor) Duplicate(result *core.SearchResult) {
	fmt.Fprintf(m.w, "  duplicate %s\n", result.Record.ID)
}

func (m *printMonitor) AfterRerank(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "  reranked %d hits\n", len(results))
}

func (m *printMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "  done: %d unique hits\n", len(results))
}
