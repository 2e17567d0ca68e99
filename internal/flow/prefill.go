package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/formpipe/formpipe/internal/genai"
	"github.com/formpipe/formpipe/internal/models"
	"github.com/formpipe/formpipe/internal/util"
)

// Prefiller fills an entire form from one free-text blob in a single
// proposer call, bypassing the conversational loop.
type Prefiller struct {
	proposer genai.ClientInterface
}

// NewPrefiller creates a prefiller over the given intent proposer.
func NewPrefiller(proposer genai.ClientInterface) *Prefiller {
	return &Prefiller{proposer: proposer}
}

// FillFromText asks the proposer to populate every field it can find in the
// text, then validates the returned snapshot before handing it back. The
// proposer output is never trusted: a structurally invalid snapshot fails
// the whole call.
func (p *Prefiller) FillFromText(ctx context.Context, fields []models.FieldDefinition, text string) ([]models.SnapshotField, error) {
	if err := models.ValidateDefinition(fields); err != nil {
		return nil, fmt.Errorf("invalid form definition: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prefill text is empty")
	}

	requestID := util.GenerateRequestID()
	slog.Debug("Prefill requested", "requestID", requestID, "fields", len(fields), "textLength", len(text))

	raw, err := p.proposer.Generate(ctx, BuildPrefillPrompt(fields, text))
	if err != nil {
		return nil, fmt.Errorf("prefill generation failed: %w", err)
	}

	var form []models.SnapshotField
	if err := json.Unmarshal([]byte(stripFences(raw)), &form); err != nil {
		return nil, fmt.Errorf("failed to parse prefilled form: %w", err)
	}
	if err := models.ValidateSnapshot(form); err != nil {
		return nil, fmt.Errorf("prefilled form failed validation: %w", err)
	}

	slog.Info("Prefill succeeded", "requestID", requestID, "fields", len(form))
	return form, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite the JSON-only instruction.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
