package flow

import (
	"testing"

	"github.com/formpipe/formpipe/internal/models"
)

func TestBuildFieldQuestion(t *testing.T) {
	tests := []struct {
		name        string
		field       models.FieldDefinition
		question    string
		wantText    string
		wantUIType  string
		wantOptions int
	}{
		{
			name:       "text default",
			field:      models.FieldDefinition{FieldName: "Name", FieldType: models.FieldTypeSingleLineText},
			wantText:   "What's the name?",
			wantUIType: "text",
		},
		{
			name:        "dropdown default",
			field:       models.FieldDefinition{FieldName: "Color", FieldType: models.FieldTypeDropdown, DropDownOptions: []string{"Red", "Blue"}},
			wantText:    "What's the color?",
			wantUIType:  "dropdown",
			wantOptions: 2,
		},
		{
			name:        "checkbox default",
			field:       models.FieldDefinition{FieldName: "Toppings", FieldType: models.FieldTypeCheckbox, CheckBoxOptions: []string{"Cheese"}},
			wantText:    "Which of these apply for toppings?",
			wantUIType:  "checkbox",
			wantOptions: 1,
		},
		{
			name:        "checklist default",
			field:       models.FieldDefinition{FieldName: "Tasks", FieldType: models.FieldTypeChecklist, ChecklistOptions: []string{"Pack", "Ship"}},
			wantText:    "Please select the items that apply for tasks:",
			wantUIType:  "checklist",
			wantOptions: 2,
		},
		{
			name:       "date default",
			field:      models.FieldDefinition{FieldName: "Start Date", FieldType: models.FieldTypeDate},
			wantText:   "What's the start date?",
			wantUIType: "date",
		},
		{
			name:       "conversational override keeps widget",
			field:      models.FieldDefinition{FieldName: "Name", FieldType: models.FieldTypeSingleLineText},
			question:   "And who should we address this to?",
			wantText:   "And who should we address this to?",
			wantUIType: "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFieldQuestion(&tt.field, tt.question)
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.UIType != tt.wantUIType {
				t.Errorf("UIType = %q, want %q", got.UIType, tt.wantUIType)
			}
			if len(got.Options) != tt.wantOptions {
				t.Errorf("Options = %v, want %d entries", got.Options, tt.wantOptions)
			}
		})
	}
}
