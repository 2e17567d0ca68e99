package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/formpipe/formpipe/internal/genai"
	"github.com/formpipe/formpipe/internal/models"
	"github.com/formpipe/formpipe/internal/normalize"
	"github.com/formpipe/formpipe/internal/store"
)

// Fallback texts for recoverable failures. Users get a conversational retry
// prompt, never a raw error.
const (
	msgUnknownField    = "I couldn't find that field. Let me help you with the form."
	msgProposerFailure = "Sorry, I encountered an error. Please try again."
	msgUnclearAction   = "I'm not sure how to handle that. Can you tell me more?"
	msgOptionalPrompt  = "Would you like to fill out any optional fields, or are you ready to submit the form?"
)

// continueKeywords and submitKeywords drive the opportunistic phase
// transitions on plain MESSAGE decisions.
var (
	continueKeywords = []string{"yes", "continue", "sure", "ok", "let's", "go ahead", "optional"}
	submitKeywords   = []string{"no", "submit", "done", "finish", "that's all", "ready to submit"}
)

// Engine is the dialogue decision engine: it owns session state transitions,
// reconciles proposer suggestions against local heuristics, and produces the
// per-turn agent response.
type Engine struct {
	store    store.Store
	proposer genai.ClientInterface
}

// NewEngine creates an engine over the given session registry and intent
// proposer.
func NewEngine(st store.Store, proposer genai.ClientInterface) *Engine {
	return &Engine{store: st, proposer: proposer}
}

// StartSession creates a session for the form template and returns the
// opening question. The first required field, when present, becomes the
// last-asked field so the user's first reply can be classified against it.
func (e *Engine) StartSession(ctx context.Context, form []models.FieldDefinition) (*models.StartResult, error) {
	if err := models.ValidateDefinition(form); err != nil {
		return nil, fmt.Errorf("invalid form definition: %w", err)
	}

	sess := models.NewSession(uuid.NewString(), form)

	var firstRequired *models.FieldDefinition
	totalRequired := 0
	for i := range form {
		if form[i].IsRequired {
			if firstRequired == nil {
				firstRequired = &form[i]
			}
			totalRequired++
		}
	}

	message := "Hi there! I'm here to help you fill out this form. "
	if firstRequired != nil {
		sess.LastAskedFieldID = firstRequired.ID
		name := strings.ToLower(firstRequired.FieldName)
		if totalRequired == 1 {
			message += fmt.Sprintf("I just need one piece of information from you. What's the %s?", name)
		} else {
			message += fmt.Sprintf("I'll guide you through %d required fields. Let's start with the %s - what would you like to tell me about that?", totalRequired, name)
		}
	} else {
		message += "This form doesn't have any required fields. How can I help you get started?"
	}
	sess.AppendAgent(message)

	if err := e.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	slog.Info("Session started", "sessionID", sess.ID, "fields", len(form), "required", totalRequired)
	return &models.StartResult{SessionID: sess.ID, Message: message}, nil
}

// Step processes one turn: append the incoming text, reconcile heuristics
// with the intent proposer, apply the resulting decision, and compute the
// next prompt. Exactly one of userMessage/selectedOption is normally set;
// both append to the conversation as user entries.
//
// The turn lock is held for the whole call, including the proposer request:
// no two decisions are ever applied concurrently against the same session.
func (e *Engine) Step(ctx context.Context, sessionID, userMessage, selectedOption string) (*models.AgentResponse, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	if userMessage != "" {
		sess.AppendUser(userMessage)
	}
	if selectedOption != "" {
		sess.AppendUser(selectedOption)
	}
	message := sess.LastUserMessage()

	// Recover a lost question reference: if no field was asked but required
	// fields remain, the reply is assumed to target the first of them.
	if sess.LastAskedFieldID == "" && message != "" {
		if unfilled := sess.UnfilledRequired(); len(unfilled) > 0 {
			sess.LastAskedFieldID = unfilled[0].ID
			slog.Debug("Auto-selected last asked field", "sessionID", sess.ID, "field", unfilled[0].FieldName)
		}
	}

	decision := e.reconcile(ctx, sess, message)
	if decision == nil {
		// Proposer failed; the turn is abandoned with no field mutation.
		resp := &models.AgentResponse{Type: models.ResponseChat, UI: models.UIHint{Text: msgProposerFailure}}
		sess.AppendAgent(resp.UI.Text)
		e.save(sess)
		return resp, nil
	}

	resp, err := e.applyDecision(sess, decision)
	if err != nil {
		return nil, err
	}
	sess.AppendAgent(resp.UI.Text)
	e.save(sess)
	return resp, nil
}

// reconcile merges the heuristic classifier's verdict with the intent
// proposer's suggestion. Precedence: pre-pass heuristic, then the proposer,
// then the strict post-pass override. Returns nil when the proposer failed
// and no decision could be produced.
func (e *Engine) reconcile(ctx context.Context, sess *models.Session, message string) models.Decision {
	// Pre-pass: a deterministically clear answer to the last asked field
	// skips the proposer entirely.
	if field := e.pendingField(sess); field != nil && message != "" {
		if LooksLikeFieldValue(message, field, Lenient) {
			slog.Debug("Pre-pass heuristic accepted value", "sessionID", sess.ID, "field", field.FieldName)
			return models.SetField{FieldID: field.ID, RawValue: message, Label: field.FieldName}
		}
	}

	proposed, err := e.proposer.ProposeDecision(ctx, BuildDecisionPrompt(sess))
	if err != nil {
		if errors.Is(err, genai.ErrUnknownAction) {
			slog.Warn("Proposer returned unknown action", "sessionID", sess.ID, "error", err)
			return models.Message{Text: msgUnclearAction}
		}
		slog.Error("Intent proposer failed", "sessionID", sess.ID, "error", err)
		return nil
	}

	// Post-pass: the proposer is not trusted to recognize short or terse
	// answers; re-check the message under the stricter threshold.
	switch proposed.(type) {
	case models.Message, models.AskField:
		if field := e.pendingField(sess); field != nil && message != "" {
			if LooksLikeFieldValue(message, field, Strict) {
				slog.Debug("Post-pass heuristic override", "sessionID", sess.ID, "field", field.FieldName)
				return models.SetField{FieldID: field.ID, RawValue: message, Label: field.FieldName}
			}
		}
	}
	return proposed
}

// pendingField returns the last-asked field when it exists and is still
// unfilled, or nil.
func (e *Engine) pendingField(sess *models.Session) *models.FieldDefinition {
	if sess.LastAskedFieldID == "" {
		return nil
	}
	field := sess.FieldByID(sess.LastAskedFieldID)
	if field == nil || sess.Filled(field.ID) {
		return nil
	}
	return field
}

// applyDecision runs the session state machine over one resolved decision.
func (e *Engine) applyDecision(sess *models.Session, decision models.Decision) (*models.AgentResponse, error) {
	switch d := decision.(type) {
	case models.SetField:
		return e.applySetField(sess, d)
	case models.AskField:
		return e.applyAskField(sess, d)
	case models.AskOptionalContinue:
		// Idempotent when the phase is already past IN_PROGRESS.
		if sess.Phase == models.PhaseInProgress {
			sess.Phase = models.PhaseRequiredComplete
		}
		text := d.Text
		if text == "" {
			text = "Perfect! All required fields are complete. " + msgOptionalPrompt
		}
		return &models.AgentResponse{Type: models.ResponseChat, UI: models.UIHint{Text: text}}, nil
	case models.Message:
		return e.applyMessage(sess, d)
	case models.ConfirmForm:
		return e.finalize(sess, "Perfect! Your form is complete and ready to submit.")
	default:
		return &models.AgentResponse{Type: models.ResponseChat, UI: models.UIHint{Text: msgUnclearAction}}, nil
	}
}

// applySetField normalizes and writes one value, then advances the phase or
// the next question.
func (e *Engine) applySetField(sess *models.Session, d models.SetField) (*models.AgentResponse, error) {
	field := sess.FieldByID(d.FieldID)
	if field == nil {
		// Unknown field reference: recover with a clarifying message, state
		// untouched.
		slog.Error("Decision referenced unknown field", "sessionID", sess.ID, "fieldID", d.FieldID)
		return &models.AgentResponse{Type: models.ResponseChat, UI: models.UIHint{Text: msgUnknownField}}, nil
	}

	value := normalizeFieldValue(field, d.RawValue)
	sess.State[field.ID] = value
	sess.LastAskedFieldID = ""
	slog.Info("Field set", "sessionID", sess.ID, "field", field.FieldName, "type", field.FieldType)

	form := models.BuildSnapshot(sess.Form, sess.State)
	label := d.Label
	if label == "" {
		label = field.FieldName
	}

	if sess.AllRequiredFilled() && sess.Phase == models.PhaseInProgress {
		sess.Phase = models.PhaseRequiredComplete
		text := fmt.Sprintf("Perfect! I've filled in %s. All required fields are now complete! %s", label, msgOptionalPrompt)
		return &models.AgentResponse{Type: models.ResponseFormUpdate, UI: models.UIHint{Text: text}, Form: form}, nil
	}

	if unfilled := sess.UnfilledRequired(); len(unfilled) > 0 {
		next := unfilled[0]
		question := BuildFieldQuestion(&next, "")
		sess.LastAskedFieldID = next.ID
		text := fmt.Sprintf("Great! I've filled in %s. %s", label, question.Text)
		return &models.AgentResponse{
			Type: models.ResponseFormUpdate,
			UI:   models.UIHint{Text: text, Options: question.Options, Type: question.UIType},
			Form: form,
		}, nil
	}

	text := fmt.Sprintf("Got it! I've filled in %s.", label)
	return &models.AgentResponse{Type: models.ResponseFormUpdate, UI: models.UIHint{Text: text}, Form: form}, nil
}

// applyAskField records the asked field and renders its question.
func (e *Engine) applyAskField(sess *models.Session, d models.AskField) (*models.AgentResponse, error) {
	field := sess.FieldByID(d.FieldID)
	if field == nil {
		slog.Error("Ask decision referenced unknown field", "sessionID", sess.ID, "fieldID", d.FieldID)
		return &models.AgentResponse{Type: models.ResponseChat, UI: models.UIHint{Text: msgUnknownField}}, nil
	}
	sess.LastAskedFieldID = field.ID
	question := BuildFieldQuestion(field, d.Question)
	return &models.AgentResponse{
		Type: models.ResponseAsk,
		UI:   models.UIHint{Text: question.Text, Options: question.Options, Type: question.UIType},
	}, nil
}

// applyMessage relays plain conversation, watching for continue/submit
// intent once the required fields are complete.
func (e *Engine) applyMessage(sess *models.Session, d models.Message) (*models.AgentResponse, error) {
	message := strings.ToLower(sess.LastUserMessage())
	if message != "" {
		if containsAny(message, continueKeywords) && sess.Phase == models.PhaseRequiredComplete {
			sess.Phase = models.PhaseOptionalPhase
			slog.Debug("User opted into optional fields", "sessionID", sess.ID)
		}
		if containsAny(message, submitKeywords) &&
			(sess.Phase == models.PhaseRequiredComplete || sess.Phase == models.PhaseOptionalPhase) {
			return e.finalize(sess, "Perfect! Your form is ready to submit.")
		}
	}
	return &models.AgentResponse{Type: models.ResponseChat, UI: models.UIHint{Text: d.Text}}, nil
}

// finalize validates the snapshot and completes the session. A structural
// violation is a defect, not a user input problem: finalization aborts with
// the error rather than silently repairing.
func (e *Engine) finalize(sess *models.Session, text string) (*models.AgentResponse, error) {
	form := models.BuildSnapshot(sess.Form, sess.State)
	if err := models.ValidateSnapshot(form); err != nil {
		slog.Error("Snapshot validation failed at finalization", "sessionID", sess.ID, "error", err)
		return nil, fmt.Errorf("snapshot validation failed: %w", err)
	}
	sess.Phase = models.PhaseCompleted
	slog.Info("Session completed", "sessionID", sess.ID)
	return &models.AgentResponse{Type: models.ResponseComplete, UI: models.UIHint{Text: text}, Form: form}, nil
}

// normalizeFieldValue converts raw text into the typed value for the field:
// phrase stripping for text, date formatting for dates, canonical option
// casing for choices. Unparseable dates and unmatched options are stored as
// given with a warning; the conversation continues.
func normalizeFieldValue(field *models.FieldDefinition, raw string) models.FieldValue {
	trimmed := strings.TrimSpace(raw)
	switch {
	case field.FieldType.IsText():
		return models.TextValue(normalize.ExtractCleanValue(trimmed, field.FieldName))
	case field.FieldType.IsDate():
		formatted, ok := normalize.ParseAndFormatDate(trimmed, field.FieldType)
		if !ok {
			slog.Warn("Could not parse date value, storing raw text", "field", field.FieldName, "value", trimmed)
			return models.TextValue(trimmed)
		}
		return models.TextValue(formatted)
	case field.FieldType == models.FieldTypeDropdown:
		if canonical := matchOption(field.DropDownOptions, trimmed); canonical != "" {
			return models.TextValue(canonical)
		}
		slog.Warn("Dropdown value does not match any option", "field", field.FieldName, "value", trimmed)
		return models.TextValue(trimmed)
	default:
		// Checkbox and checklist: comma-separated selections, canonicalized
		// against the option list where they match.
		var selections []string
		for _, part := range strings.Split(trimmed, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if canonical := matchOption(field.Options(), part); canonical != "" {
				part = canonical
			} else {
				slog.Warn("Selection does not match any option", "field", field.FieldName, "value", part)
			}
			selections = append(selections, part)
		}
		return models.SelectionsValue(selections)
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func (e *Engine) save(sess *models.Session) {
	if err := e.store.SaveSession(sess); err != nil {
		slog.Error("Failed to save session", "sessionID", sess.ID, "error", err)
	}
}
