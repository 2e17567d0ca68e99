// Package models defines the core data structures for FormPipe.
//
// It includes field definitions, decisions, agent responses, and form
// snapshots, which are shared across modules.
package models

import (
	"errors"
	"fmt"
)

// FieldType defines the shape of a form field's value.
type FieldType string

const (
	// FieldTypeSingleLineText holds one line of free text.
	FieldTypeSingleLineText FieldType = "SINGLE_LINE_TEXT"
	// FieldTypeMultiLineText holds multi-line free text.
	FieldTypeMultiLineText FieldType = "MULTI_LINE_TEXT"
	// FieldTypeDropdown holds exactly one of a fixed option list.
	FieldTypeDropdown FieldType = "DROPDOWN"
	// FieldTypeCheckbox holds a subset of a fixed option list.
	FieldTypeCheckbox FieldType = "CHECKBOX"
	// FieldTypeChecklist holds a subset of a fixed option list.
	FieldTypeChecklist FieldType = "CHECKLIST"
	// FieldTypeDate holds a calendar date, normalized to midnight.
	FieldTypeDate FieldType = "DATE"
	// FieldTypeDateAndTime holds a calendar date with a time of day.
	FieldTypeDateAndTime FieldType = "DATE_AND_TIME"
)

// DateTimeLayout is the wire format for all stored date values: no timezone,
// no milliseconds.
const DateTimeLayout = "2006-01-02T15:04:05"

// Error variables for definition validation and snapshot checks.
var (
	ErrEmptyDefinition   = errors.New("form definition has no fields")
	ErrEmptyFieldID      = errors.New("field id cannot be empty")
	ErrDuplicateFieldID  = errors.New("duplicate field id")
	ErrInvalidFieldType  = errors.New("invalid field type")
	ErrMissingOptions    = errors.New("choice field requires a non-empty option list")
	ErrConflictingSlots  = errors.New("multiple value slots populated for field")
	ErrUnknownOption     = errors.New("selected value is not in the field's option list")
	ErrInvalidDateFormat = errors.New("date value does not match YYYY-MM-DDTHH:mm:ss")
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeSingleLineText, FieldTypeMultiLineText, FieldTypeDropdown,
		FieldTypeCheckbox, FieldTypeChecklist, FieldTypeDate, FieldTypeDateAndTime:
		return true
	default:
		return false
	}
}

// IsText reports whether the type stores free text.
func (ft FieldType) IsText() bool {
	return ft == FieldTypeSingleLineText || ft == FieldTypeMultiLineText
}

// IsDate reports whether the type stores a normalized date value.
func (ft FieldType) IsDate() bool {
	return ft == FieldTypeDate || ft == FieldTypeDateAndTime
}

// IsChoice reports whether the type draws its value from a fixed option list.
func (ft FieldType) IsChoice() bool {
	return ft == FieldTypeDropdown || ft == FieldTypeCheckbox || ft == FieldTypeChecklist
}

// FieldDefinition is an immutable descriptor of one form field. It is created
// once per form template and never mutated; sessions borrow it by reference.
type FieldDefinition struct {
	ID               string    `json:"id"`
	FieldName        string    `json:"fieldName"`
	FieldType        FieldType `json:"fieldType"`
	IsRequired       bool      `json:"isRequired"`
	DropDownOptions  []string  `json:"dropDownOptions,omitempty"`
	CheckBoxOptions  []string  `json:"checkBoxOptions,omitempty"`
	ChecklistOptions []string  `json:"checklistOptions,omitempty"`
}

// Options returns the option list matching the field's type, or nil for
// non-choice types.
func (f *FieldDefinition) Options() []string {
	switch f.FieldType {
	case FieldTypeDropdown:
		return f.DropDownOptions
	case FieldTypeCheckbox:
		return f.CheckBoxOptions
	case FieldTypeChecklist:
		return f.ChecklistOptions
	default:
		return nil
	}
}

// Validate checks the structural invariants of a single field definition.
func (f *FieldDefinition) Validate() error {
	if f.ID == "" {
		return ErrEmptyFieldID
	}
	if !IsValidFieldType(f.FieldType) {
		return fmt.Errorf("%w: %q", ErrInvalidFieldType, f.FieldType)
	}
	if f.FieldType.IsChoice() && len(f.Options()) == 0 {
		return fmt.Errorf("%w: %s (%s)", ErrMissingOptions, f.FieldName, f.FieldType)
	}
	return nil
}

// ValidateDefinition checks a whole form template: every field valid, ids unique.
func ValidateDefinition(fields []FieldDefinition) error {
	if len(fields) == 0 {
		return ErrEmptyDefinition
	}
	seen := make(map[string]struct{}, len(fields))
	for i := range fields {
		if err := fields[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[fields[i].ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateFieldID, fields[i].ID)
		}
		seen[fields[i].ID] = struct{}{}
	}
	return nil
}

// ResponseType classifies an agent response for the consuming transport.
type ResponseType string

const (
	// ResponseFormUpdate indicates the form snapshot changed.
	ResponseFormUpdate ResponseType = "FORM_UPDATE"
	// ResponseChat carries a conversational message with no form change.
	ResponseChat ResponseType = "CHAT"
	// ResponseAsk asks the user for a specific field's value.
	ResponseAsk ResponseType = "ASK"
	// ResponseComplete carries the finalized form snapshot.
	ResponseComplete ResponseType = "COMPLETE"
)

// UIHint tells the consuming transport how to render a response.
type UIHint struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
	Type    string   `json:"type,omitempty"` // text, dropdown, checkbox, checklist, date
}

// AgentResponse is the per-turn result of the decision engine.
type AgentResponse struct {
	Type ResponseType    `json:"type"`
	UI   UIHint          `json:"ui"`
	Form []SnapshotField `json:"form,omitempty"`
}

// StartResult is returned when a new session is created.
type StartResult struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}
