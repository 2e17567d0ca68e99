package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/formpipe/formpipe/internal/models"
)

// fieldBrief is the trimmed field view given to the proposer for unfilled
// field lists.
type fieldBrief struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Type models.FieldType `json:"type"`
}

func briefFields(fields []models.FieldDefinition) []fieldBrief {
	out := make([]fieldBrief, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldBrief{ID: f.ID, Name: f.FieldName, Type: f.FieldType})
	}
	return out
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// BuildDecisionPrompt assembles the context bundle handed to the intent
// proposer: form definition, form state, conversation history, unfilled
// required/optional fields, the last-asked field, and the last user message,
// followed by the action rules and the strict JSON response format.
func BuildDecisionPrompt(sess *models.Session) string {
	lastAsked := "None - this is the first question"
	if f := sess.FieldByID(sess.LastAskedFieldID); f != nil {
		lastAsked = mustJSON(f)
	}

	var b strings.Builder
	b.WriteString(`You are a warm, friendly, and helpful assistant helping someone fill out a form. Be encouraging and make the process feel natural and conversational.

CRITICAL RULE - READ THIS FIRST:
If "LAST ASKED FIELD" below is NOT "None" AND the last user message is NOT a greeting (hi/hello/hey) or question word, you MUST use SET_FIELD immediately. Do NOT ask the question again. Do NOT use MESSAGE. Use SET_FIELD with the LAST ASKED FIELD's id.

FORM DEFINITION:
`)
	b.WriteString(mustJSON(sess.Form))
	b.WriteString("\n\nCURRENT FORM STATE (what's already filled):\n")
	b.WriteString(mustJSON(sess.State))
	b.WriteString("\n\nCONVERSATION HISTORY:\n")
	b.WriteString(mustJSON(sess.Conversation))
	b.WriteString("\n\nUNFILLED REQUIRED FIELDS:\n")
	b.WriteString(mustJSON(briefFields(sess.UnfilledRequired())))
	b.WriteString("\n\nUNFILLED OPTIONAL FIELDS:\n")
	b.WriteString(mustJSON(briefFields(sess.UnfilledOptional())))
	b.WriteString("\n\nLAST ASKED FIELD:\n")
	b.WriteString(lastAsked)
	fmt.Fprintf(&b, "\n\nLAST USER MESSAGE: %q\n", sess.LastUserMessage())
	fmt.Fprintf(&b, `
CURRENT STATUS:
- All required fields filled: %t
- Asking about optional fields: %t
- Unfilled required fields remaining: %d
- Unfilled optional fields remaining: %d
`, sess.AllRequiredFilled(), sess.Phase == models.PhaseRequiredComplete,
		len(sess.UnfilledRequired()), len(sess.UnfilledOptional()))
	b.WriteString(`
ACTION RULES (IN ORDER OF PRIORITY):
1. SET_FIELD: if LAST ASKED FIELD exists and the last user message is not a greeting/question, or the user provides ANY value matching a field, extract it and set it IMMEDIATELY. Do not ask for confirmation. Include fieldId (exact id from FORM DEFINITION), value, and fieldLabel in the payload.
2. ASK_FIELD: when asking a NEW question about a specific field - include a conversational "question" in the payload. Never use it right after the user provided a value.
3. MESSAGE: greetings, casual conversation, progress updates.
4. ASK_OPTIONAL_CONTINUE: when all required fields just became filled and you need to ask whether to continue with optional fields or submit.
5. CONFIRM_FORM: when the user wants to submit.

WORKFLOW:
- Phase 1: ask about required fields one by one until all are filled.
- Phase 2: when all required fields are filled, ask whether to fill optional fields or submit.
- Phase 3: if the user continues, ask about optional fields one by one, less pushy.

RESPONSE FORMAT (return ONLY valid JSON):
{
  "action": "MESSAGE" | "SET_FIELD" | "ASK_FIELD" | "ASK_OPTIONAL_CONTINUE" | "CONFIRM_FORM",
  "payload": {
    // MESSAGE: { "text": "your friendly response" }
    // SET_FIELD: { "fieldId": "field-id", "value": "extracted value", "fieldLabel": "Field Name" }
    // ASK_FIELD: { "fieldId": "field-id", "question": "conversational question" }
    // ASK_OPTIONAL_CONTINUE: { "text": "Would you like to fill optional fields or submit?" }
    // CONFIRM_FORM: {}
  }
}
`)
	return b.String()
}

// BuildPrefillPrompt assembles the one-shot fill prompt: the read-only field
// array plus a free-text blob the proposer extracts every value from at once.
func BuildPrefillPrompt(fields []models.FieldDefinition, text string) string {
	var b strings.Builder
	b.WriteString("You are an AI that fills a dynamic form from text.\n\nFORM ARRAY (READ-ONLY):\n")
	enc, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		enc = []byte("[]")
	}
	b.Write(enc)
	b.WriteString("\n\nTEXT:\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n")
	b.WriteString(`
STRICT RULES:
- Do NOT modify, remove, or reorder fields
- Do NOT rename any existing property
- Populate values ONLY based on fieldType rules
- Exactly ONE value field per form item may be populated
- All other value fields MUST be null

FIELD TYPE MAPPING:
- SINGLE_LINE_TEXT -> fieldValue
- MULTI_LINE_TEXT -> fieldValue
- DROPDOWN -> selectedDropdownOption
- CHECKBOX -> selectedCheckboxOptions
- DATE -> dateAndTimeValue (YYYY-MM-DDTHH:mm:ss)
- DATE_AND_TIME -> dateAndTimeValue (YYYY-MM-DDTHH:mm:ss)
- CHECKLIST -> selectedChecklistOptions

ADDITIONAL RULES:
- Dropdown values must be from dropDownOptions
- Checkbox/Checklist values must be from their options
- If no value found, keep all value fields null
- Never hallucinate
- Return valid JSON only, no explanations
`)
	return b.String()
}
