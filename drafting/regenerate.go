package drafting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retrieval"
)

const regenerateSystemPrompt = `You are a professional report writer. Rewrite the report section below following the instruction.
Use the reference material when it is relevant. Reply with the new section content only.`

// RegenerateRequest describes a single section rewrite.
type RegenerateRequest struct {
	TenantID    string
	Content     string
	Instruction string

	// Section and Field are optional. When Field is set and is not a string
	// field, the reply is requested as JSON of that shape.
	Section string
	Field   *core.Field
}

// Regenerator rewrites individual report sections.
type Regenerator struct {
	generator ai.Generator
	connector *retrieval.Connector
	limit     int
	logger    *slog.Logger
}

// Regenerate returns replacement content for one section. Retrieval
// failures only remove the grounding; generator failures are returned.
func (r *Regenerator) Regenerate(ctx context.Context, req RegenerateRequest) (string, error) {
	if err := core.ValidateTenantID(req.TenantID); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return "", ErrInstructionRequired
	}

	system := regenerateSystemPrompt
	if req.Field != nil && req.Field.Kind != core.KindString {
		instruction, err := ai.JSONInstruction(req.Field.JSONSchema())
		if err != nil {
			return "", err
		}
		system += "\n\n" + instruction
	}

	var b strings.Builder
	if req.Section != "" {
		fmt.Fprintf(&b, "Section: %s\n", req.Section)
	}
	fmt.Fprintf(&b, "Instruction: %s\nCurrent content: %s\n", req.Instruction, req.Content)
	if refs := r.ground(ctx, req); len(refs) > 0 {
		fmt.Fprintf(&b, "Reference material:\n%s\n", formatTexts(refs))
	}

	text, err := ai.CompleteText(ctx, r.generator, system, b.String())
	if err != nil {
		return "", fmt.Errorf("regenerating section: %w", err)
	}
	return ai.StripCodeFence(text), nil
}

func (r *Regenerator) ground(ctx context.Context, req RegenerateRequest) []string {
	if r.connector == nil {
		return nil
	}
	store, err := r.connector.Store(ctx)
	if err != nil {
		r.logger.Warn("regenerating without grounding", "err", err)
		return nil
	}
	query := strings.TrimSpace(req.Instruction + " " + req.Content)
	results, err := store.Search(ctx, req.TenantID, query, r.limit)
	if err != nil {
		r.logger.Warn("regenerating without grounding", "err", err)
		return nil
	}
	refs := make([]string, len(results))
	for i, res := range results {
		refs[i] = res.Record.Text
	}
	return refs
}
