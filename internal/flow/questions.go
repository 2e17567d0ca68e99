package flow

import (
	"fmt"
	"strings"

	"github.com/formpipe/formpipe/internal/models"
)

// FieldQuestion is a rendered question about one field: the prompt text plus
// the UI widget hint and, for choice types, the option list.
type FieldQuestion struct {
	Text    string
	UIType  string
	Options []string
}

// BuildFieldQuestion renders a type-appropriate question for the field.
// A non-empty conversational question (e.g. one proposed by the intent
// proposer) replaces the default text; the widget hint and options always
// come from the field definition.
func BuildFieldQuestion(field *models.FieldDefinition, question string) FieldQuestion {
	name := strings.ToLower(field.FieldName)
	info, _ := models.TypeInfo(field.FieldType)

	text := fmt.Sprintf("What's the %s?", name)
	switch field.FieldType {
	case models.FieldTypeCheckbox:
		text = fmt.Sprintf("Which of these apply for %s?", name)
	case models.FieldTypeChecklist:
		text = fmt.Sprintf("Please select the items that apply for %s:", name)
	}
	if question != "" {
		text = question
	}

	return FieldQuestion{
		Text:    text,
		UIType:  info.Widget,
		Options: field.Options(),
	}
}
