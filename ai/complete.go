package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// maxJSONAttempts bounds how often CompleteJSON re-asks for parseable output.
const maxJSONAttempts = 3

// ErrNoCompletion indicates the model returned an empty reply.
var ErrNoCompletion = errors.New("model returned no content")

// CompleteText sends a single system and user exchange and returns the reply text.
func CompleteText(ctx context.Context, g Generator, system, user string) (string, error) {
	resp, err := g.Complete(ctx, CompletionRequest{
		System:   system,
		Messages: []Message{UserMessage(user)},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrNoCompletion
	}
	return text, nil
}

// CompleteJSON requests a JSON reply and decodes it into v.
// When schema is non-nil it is appended to the system prompt as the required
// output shape. Malformed replies are retried up to three times.
func CompleteJSON(ctx context.Context, g Generator, req CompletionRequest, schema map[string]any, v any) error {
	req.JSON = true
	if schema != nil {
		instruction, err := JSONInstruction(schema)
		if err != nil {
			return err
		}
		req.System = strings.TrimSpace(req.System + "\n\n" + instruction)
	}

	var lastErr error
	for attempt := 1; attempt <= maxJSONAttempts; attempt++ {
		resp, err := g.Complete(ctx, req)
		if err != nil {
			return err
		}
		if strings.TrimSpace(resp.Content) == "" {
			lastErr = ErrNoCompletion
			continue
		}
		if err := DecodeJSON(resp.Content, v); err != nil {
			lastErr = err
			slog.Warn("error parsing model JSON response",
				"attempt", attempt,
				"response", resp.Content,
				"err", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("parsing model response after %d attempts: %w", maxJSONAttempts, lastErr)
}

// JSONInstruction renders the instruction asking a model for JSON output
// shaped like schema.
func JSONInstruction(schema map[string]any) (string, error) {
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding output schema: %w", err)
	}
	return fmt.Sprintf(jsonInstruction, raw), nil
}

const jsonInstruction = `Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s`
