// Package models: the Decision union produced by heuristics or the intent
// proposer and consumed exactly once by the session state machine.
package models

// Decision is the chosen next action for a turn. It is a closed union: each
// action kind is its own struct carrying only the fields that action needs.
type Decision interface {
	isDecision()
}

// SetField writes a normalized value into one field.
type SetField struct {
	FieldID  string
	RawValue string
	Label    string
}

// AskField asks the user about one field. Question, when non-empty, replaces
// the default type-appropriate question text.
type AskField struct {
	FieldID  string
	Question string
}

// Message is plain conversation with no field mutation.
type Message struct {
	Text string
}

// AskOptionalContinue asks whether to fill optional fields or submit.
type AskOptionalContinue struct {
	Text string
}

// ConfirmForm finalizes the session.
type ConfirmForm struct{}

func (SetField) isDecision()            {}
func (AskField) isDecision()            {}
func (Message) isDecision()             {}
func (AskOptionalContinue) isDecision() {}
func (ConfirmForm) isDecision()         {}
