// Package models defines session state structures for FormPipe dialogues.
package models

import (
	"strings"
	"sync"
	"time"
)

// Role identifies the author of a conversation entry.
type Role string

const (
	// RoleUser marks an entry written by the form filler.
	RoleUser Role = "user"
	// RoleAgent marks an entry written by the agent.
	RoleAgent Role = "agent"
)

// ConversationEntry is one ordered record of the session transcript.
// The log is append-only.
type ConversationEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// SessionPhase tracks progress through the form. Transitions are monotonic:
// IN_PROGRESS -> REQUIRED_COMPLETE happens exactly once, when every required
// field first becomes filled; OPTIONAL_PHASE may be skipped straight to
// COMPLETED.
type SessionPhase string

const (
	// PhaseInProgress means required fields are still being collected.
	PhaseInProgress SessionPhase = "in-progress"
	// PhaseRequiredComplete means every required field is filled.
	PhaseRequiredComplete SessionPhase = "required-complete"
	// PhaseOptionalPhase means the user chose to fill optional fields.
	PhaseOptionalPhase SessionPhase = "optional-phase"
	// PhaseCompleted means the form was confirmed and finalized.
	PhaseCompleted SessionPhase = "completed"
)

// FieldValue is one normalized field value: scalar text (including ISO date
// text) or a set of selected option strings, never both.
type FieldValue struct {
	Text       string   `json:"text,omitempty"`
	Selections []string `json:"selections,omitempty"`
}

// TextValue wraps scalar text as a FieldValue.
func TextValue(s string) FieldValue { return FieldValue{Text: s} }

// SelectionsValue wraps a selection set as a FieldValue.
func SelectionsValue(opts []string) FieldValue { return FieldValue{Selections: opts} }

// IsZero reports whether the value is unpopulated.
func (v FieldValue) IsZero() bool {
	return v.Text == "" && len(v.Selections) == 0
}

// Session aggregates one user's in-progress interaction with a form template.
// Field definitions are borrowed from the template, never owned. State is
// mutated exclusively by the session state machine, one turn at a time.
type Session struct {
	ID               string                `json:"sessionId"`
	Form             []FieldDefinition     `json:"formDefinition"`
	State            map[string]FieldValue `json:"formState"`
	Conversation     []ConversationEntry   `json:"conversation"`
	Phase            SessionPhase          `json:"status"`
	LastAskedFieldID string                `json:"lastAskedFieldId,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`

	mu sync.Mutex
}

// NewSession creates a session over the given form template.
func NewSession(id string, form []FieldDefinition) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Form:      form,
		State:     make(map[string]FieldValue),
		Phase:     PhaseInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Lock acquires the session's turn lock. Each turn must be processed to
// completion before the next is accepted.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// FieldByID returns the field definition with the given id, or nil.
func (s *Session) FieldByID(id string) *FieldDefinition {
	for i := range s.Form {
		if s.Form[i].ID == id {
			return &s.Form[i]
		}
	}
	return nil
}

// Filled reports whether the field has a resolved value. Absence from the
// state map means unfilled.
func (s *Session) Filled(fieldID string) bool {
	v, ok := s.State[fieldID]
	return ok && !v.IsZero()
}

// UnfilledRequired returns the unfilled required fields in document order.
func (s *Session) UnfilledRequired() []FieldDefinition {
	var out []FieldDefinition
	for i := range s.Form {
		if s.Form[i].IsRequired && !s.Filled(s.Form[i].ID) {
			out = append(out, s.Form[i])
		}
	}
	return out
}

// UnfilledOptional returns the unfilled optional fields in document order.
func (s *Session) UnfilledOptional() []FieldDefinition {
	var out []FieldDefinition
	for i := range s.Form {
		if !s.Form[i].IsRequired && !s.Filled(s.Form[i].ID) {
			out = append(out, s.Form[i])
		}
	}
	return out
}

// AllRequiredFilled reports whether every required field has a value.
func (s *Session) AllRequiredFilled() bool {
	for i := range s.Form {
		if s.Form[i].IsRequired && !s.Filled(s.Form[i].ID) {
			return false
		}
	}
	return true
}

// AppendUser appends a user entry to the conversation log.
func (s *Session) AppendUser(text string) {
	s.Conversation = append(s.Conversation, ConversationEntry{Role: RoleUser, Text: text})
	s.UpdatedAt = time.Now()
}

// AppendAgent appends an agent entry to the conversation log.
func (s *Session) AppendAgent(text string) {
	s.Conversation = append(s.Conversation, ConversationEntry{Role: RoleAgent, Text: text})
	s.UpdatedAt = time.Now()
}

// LastUserMessage returns the most recent user entry, trimmed, or "".
func (s *Session) LastUserMessage() string {
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Role == RoleUser {
			return strings.TrimSpace(s.Conversation[i].Text)
		}
	}
	return ""
}
