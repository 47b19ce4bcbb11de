package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/retrieval"
)

// Tool names offered to the generator.
const (
	ToolWebSearch         = "web_search"
	ToolRetrieveDocuments = "retrieve_documents"
)

var queryParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "The query to use in your search.",
		},
	},
	"required": []string{"query"},
}

type toolArgs struct {
	Query string `json:"query"`
}

// toolbox executes tool calls for one tenant.
type toolbox struct {
	store    *retrieval.Store
	searcher ai.WebSearcher
	tenantID string
	limit    int
}

// definitions lists the tools whose backends are configured.
func (t *toolbox) definitions() []ai.ToolDefinition {
	var defs []ai.ToolDefinition
	if t.searcher != nil {
		defs = append(defs, ai.ToolDefinition{
			Name:        ToolWebSearch,
			Description: "Call to surf the web.",
			Parameters:  queryParameters,
		})
	}
	if t.store != nil {
		defs = append(defs, ai.ToolDefinition{
			Name:        ToolRetrieveDocuments,
			Description: "Search the client's previously uploaded documents.",
			Parameters:  queryParameters,
		})
	}
	return defs
}

// call runs a tool and returns its result as text for the model.
func (t *toolbox) call(ctx context.Context, call ai.ToolCall) (string, error) {
	var args toolArgs
	if err := ai.DecodeJSON(call.Arguments, &args); err != nil {
		return "", fmt.Errorf("decoding %s arguments: %w", call.Name, err)
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", fmt.Errorf("%s requires a query", call.Name)
	}

	switch call.Name {
	case ToolWebSearch:
		if t.searcher == nil {
			return "", fmt.Errorf("%w: %s", ErrToolUnavailable, call.Name)
		}
		snippets, err := t.searcher.Search(ctx, query)
		if err != nil {
			return "", err
		}
		return formatSnippets(snippets), nil
	case ToolRetrieveDocuments:
		if t.store == nil {
			return "", fmt.Errorf("%w: %s", ErrToolUnavailable, call.Name)
		}
		results, err := t.store.MultiQuerySearch(ctx, t.tenantID, query, t.limit)
		if err != nil {
			return "", err
		}
		results = t.store.Rerank(ctx, results, query)
		if len(results) > t.limit {
			results = results[:t.limit]
		}
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Record.Text
		}
		return formatTexts(texts), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
}

func formatSnippets(snippets []ai.Snippet) string {
	if len(snippets) == 0 {
		return "No results."
	}
	type result struct {
		Title   string `json:"title,omitempty"`
		Content string `json:"content"`
		URL     string `json:"url,omitempty"`
	}
	out := make([]result, len(snippets))
	for i, s := range snippets {
		out[i] = result{Title: s.Title, Content: s.Content, URL: s.URL}
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func formatTexts(texts []string) string {
	if len(texts) == 0 {
		return "No results."
	}
	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	return strings.TrimSpace(b.String())
}
