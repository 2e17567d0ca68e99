// Package genai provides the intent proposer client backed by the OpenAI
// chat completions API.
//
// The proposer suggests one Decision per turn from the conversational
// context. It is treated as fallible and possibly wrong: replies are parsed
// defensively and the decision engine reserves the right to override them.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/formpipe/formpipe/internal/models"
)

// Error variables for proposer failures.
var (
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")
	ErrNoChoices     = errors.New("no choices returned")
	ErrUnknownAction = errors.New("proposer returned an unknown action")
)

// ClientInterface defines the intent proposer operations consumed by the
// decision engine. Implementations must be safe for concurrent use.
type ClientInterface interface {
	// ProposeDecision sends the context-bundle prompt and parses the reply
	// into a Decision.
	ProposeDecision(ctx context.Context, prompt string) (models.Decision, error)

	// Generate sends a prompt and returns the raw completion text.
	Generate(ctx context.Context, prompt string) (string, error)

	// Ping sends a trivial completion to verify key, model, and quota.
	Ping(ctx context.Context) error
}

// systemPrompt pins the proposer to its role; replies must be bare JSON.
const systemPrompt = "You are the decision module of a form-filling assistant. " +
	"Reply ONLY with valid JSON. No prose outside the JSON."

// Client wraps the OpenAI chat completion service as an intent proposer.
type Client struct {
	client openai.Client
	model  shared.ChatModel
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a proposer client for the given API key and model.
// An empty model falls back to GPT-4o mini.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  shared.ChatModel(model),
	}, nil
}

// NewClientFromEnv creates a proposer client from OPENAI_API_KEY and
// OPENAI_MODEL.
func NewClientFromEnv() (*Client, error) {
	return NewClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"))
}

// Generate sends a prompt and returns the raw completion text. Temperature
// is pinned to zero and the response format to a JSON object, mirroring how
// the decision and prefill prompts are phrased.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// ProposeDecision sends the context-bundle prompt and parses the returned
// action into a Decision.
func (c *Client) ProposeDecision(ctx context.Context, prompt string) (models.Decision, error) {
	raw, err := c.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	slog.Debug("Proposer raw reply", "length", len(raw))
	return ParseDecision(raw)
}

// Ping verifies key, model, and quota with a minimal completion.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Hello"),
		},
	})
	if err != nil {
		return fmt.Errorf("proposer ping failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrNoChoices
	}
	return nil
}

// decisionPayload is the union of every action's payload fields. Value may
// arrive as a string or as an array of option strings.
type decisionPayload struct {
	FieldID    string          `json:"fieldId"`
	Value      json.RawMessage `json:"value"`
	FieldLabel string          `json:"fieldLabel"`
	Question   string          `json:"question"`
	Text       string          `json:"text"`
}

type decisionEnvelope struct {
	Action  string          `json:"action"`
	Payload decisionPayload `json:"payload"`
}

// ParseDecision parses a proposer reply into a Decision. Markdown code
// fences around the JSON are tolerated; unknown actions are rejected with
// ErrUnknownAction.
func ParseDecision(raw string) (models.Decision, error) {
	cleaned := stripCodeFences(raw)
	var env decisionEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return nil, fmt.Errorf("failed to parse proposer reply: %w", err)
	}
	switch env.Action {
	case "SET_FIELD":
		return models.SetField{
			FieldID:  env.Payload.FieldID,
			RawValue: decodeValue(env.Payload.Value),
			Label:    env.Payload.FieldLabel,
		}, nil
	case "ASK_FIELD":
		return models.AskField{FieldID: env.Payload.FieldID, Question: env.Payload.Question}, nil
	case "MESSAGE":
		return models.Message{Text: env.Payload.Text}, nil
	case "ASK_OPTIONAL_CONTINUE":
		return models.AskOptionalContinue{Text: env.Payload.Text}, nil
	case "CONFIRM_FORM":
		return models.ConfirmForm{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

// decodeValue flattens a payload value into raw text. Arrays (checkbox and
// checklist selections) are joined with commas for the normalizer to split.
func decodeValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return strings.Trim(string(raw), `"`)
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
