// Package models: the wire-facing form snapshot, its per-type projection
// registry, and the structural validator run before any snapshot is treated
// as authoritative.
package models

import (
	"fmt"
	"regexp"
)

// Snapshot slot names, matching the legacy five-column layout.
const (
	SlotFieldValue       = "fieldValue"
	SlotDropdownOption   = "selectedDropdownOption"
	SlotCheckboxOptions  = "selectedCheckboxOptions"
	SlotChecklistOptions = "selectedChecklistOptions"
	SlotDateAndTimeValue = "dateAndTimeValue"
)

// FieldTypeInfo describes how one field type stores and projects its value.
// There is exactly one populated-value slot per type.
type FieldTypeInfo struct {
	Slot   string // snapshot column this type populates
	Multi  bool   // true when the value is a selection set
	Widget string // UI widget hint for questions about this type
}

// typeRegistry is the single dispatch table consulted by value application
// and snapshot building alike.
var typeRegistry = map[FieldType]FieldTypeInfo{
	FieldTypeSingleLineText: {Slot: SlotFieldValue, Widget: "text"},
	FieldTypeMultiLineText:  {Slot: SlotFieldValue, Widget: "text"},
	FieldTypeDropdown:       {Slot: SlotDropdownOption, Widget: "dropdown"},
	FieldTypeCheckbox:       {Slot: SlotCheckboxOptions, Multi: true, Widget: "checkbox"},
	FieldTypeChecklist:      {Slot: SlotChecklistOptions, Multi: true, Widget: "checklist"},
	FieldTypeDate:           {Slot: SlotDateAndTimeValue, Widget: "date"},
	FieldTypeDateAndTime:    {Slot: SlotDateAndTimeValue, Widget: "date"},
}

// TypeInfo looks up the registry entry for a field type.
func TypeInfo(ft FieldType) (FieldTypeInfo, bool) {
	info, ok := typeRegistry[ft]
	return info, ok
}

// SnapshotField is one field of the external-facing form projection: the
// definition annotated with at most one populated value slot.
type SnapshotField struct {
	FieldDefinition
	FieldValue               *string  `json:"fieldValue"`
	SelectedDropdownOption   *string  `json:"selectedDropdownOption"`
	SelectedCheckboxOptions  []string `json:"selectedCheckboxOptions"`
	SelectedChecklistOptions []string `json:"selectedChecklistOptions"`
	DateAndTimeValue         *string  `json:"dateAndTimeValue"`
}

// dateTimePattern is the exact wire shape for date values.
var dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)

// IsWireDateTime reports whether s matches the exact YYYY-MM-DDTHH:mm:ss shape.
func IsWireDateTime(s string) bool {
	return dateTimePattern.MatchString(s)
}

// BuildSnapshot projects form state onto the field definition array. Each
// field gets its value routed into the slot the type registry names; all
// other slots stay null.
func BuildSnapshot(fields []FieldDefinition, state map[string]FieldValue) []SnapshotField {
	out := make([]SnapshotField, 0, len(fields))
	for i := range fields {
		sf := SnapshotField{FieldDefinition: fields[i]}
		value, ok := state[fields[i].ID]
		if ok && !value.IsZero() {
			projectValue(&sf, value)
		}
		out = append(out, sf)
	}
	return out
}

// projectValue writes the value into the snapshot slot for the field's type.
func projectValue(sf *SnapshotField, value FieldValue) {
	info, ok := typeRegistry[sf.FieldType]
	if !ok {
		return
	}
	if info.Multi {
		selections := value.Selections
		if len(selections) == 0 && value.Text != "" {
			// Scalar stored for a set-valued field; coerce to a one-element set.
			selections = []string{value.Text}
		}
		if sf.FieldType == FieldTypeCheckbox {
			sf.SelectedCheckboxOptions = selections
		} else {
			sf.SelectedChecklistOptions = selections
		}
		return
	}
	text := value.Text
	switch info.Slot {
	case SlotDropdownOption:
		sf.SelectedDropdownOption = &text
	case SlotDateAndTimeValue:
		sf.DateAndTimeValue = &text
	default:
		sf.FieldValue = &text
	}
}

// ValidateSnapshot checks the structural invariants of a filled-form
// snapshot. Failures are programming-invariant violations, not user input
// problems: finalization must abort rather than silently repair. The check
// is pure and never mutates the snapshot.
func ValidateSnapshot(form []SnapshotField) error {
	for i := range form {
		f := &form[i]
		populated := 0
		if f.FieldValue != nil {
			populated++
		}
		if f.SelectedDropdownOption != nil {
			populated++
		}
		if f.SelectedCheckboxOptions != nil {
			populated++
		}
		if f.SelectedChecklistOptions != nil {
			populated++
		}
		if f.DateAndTimeValue != nil {
			populated++
		}
		if populated > 1 {
			return fmt.Errorf("%w: %s", ErrConflictingSlots, f.ID)
		}

		if f.SelectedDropdownOption != nil && len(f.DropDownOptions) > 0 {
			if !containsOption(f.DropDownOptions, *f.SelectedDropdownOption) {
				return fmt.Errorf("%w: dropdown %q for %s", ErrUnknownOption, *f.SelectedDropdownOption, f.FieldName)
			}
		}
		if f.SelectedCheckboxOptions != nil && len(f.CheckBoxOptions) > 0 {
			for _, v := range f.SelectedCheckboxOptions {
				if !containsOption(f.CheckBoxOptions, v) {
					return fmt.Errorf("%w: checkbox %q for %s", ErrUnknownOption, v, f.FieldName)
				}
			}
		}
		if f.SelectedChecklistOptions != nil && len(f.ChecklistOptions) > 0 {
			for _, v := range f.SelectedChecklistOptions {
				if !containsOption(f.ChecklistOptions, v) {
					return fmt.Errorf("%w: checklist %q for %s", ErrUnknownOption, v, f.FieldName)
				}
			}
		}
		if f.DateAndTimeValue != nil && !IsWireDateTime(*f.DateAndTimeValue) {
			return fmt.Errorf("%w: %q for %s", ErrInvalidDateFormat, *f.DateAndTimeValue, f.FieldName)
		}
	}
	return nil
}

func containsOption(options []string, value string) bool {
	for _, opt := range options {
		if opt == value {
			return true
		}
	}
	return false
}
