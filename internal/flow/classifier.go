// Package flow implements the dialogue decision engine for FormPipe: the
// heuristic classifier, the decision reconciler, and the session state
// machine that fills a form through conversation.
package flow

import (
	"regexp"
	"strings"

	"github.com/formpipe/formpipe/internal/models"
)

// Strictness selects the acceptance threshold of the heuristic classifier.
// The pre-pass (before the intent proposer is consulted) runs Lenient; the
// post-pass override of a proposer decision runs Strict. One parameterized
// classifier serves both call sites so the thresholds cannot drift.
type Strictness int

const (
	// Lenient accepts any 2+ character non-greeting for free-text fields and
	// demands multi-token or 6+ character input for other non-choice types.
	Lenient Strictness = iota
	// Strict demands more than 3 characters across the board.
	Strict
)

// greetingPattern matches messages that are plainly not field values:
// greetings, acknowledgments, and bare question words. Whole-string,
// case-insensitive.
var greetingPattern = regexp.MustCompile(`^(?i:hi|hello|hey|good morning|good afternoon|good evening|how are you|what|when|where|how|why|can you|could you|would you|will you|please|thanks|thank you|yes|no|ok|okay|sure|alright|fine|good|great)$`)

// IsGreetingOrQuestion reports whether the trimmed message exactly matches
// the fixed greeting/acknowledgment/question-word list.
func IsGreetingOrQuestion(message string) bool {
	return greetingPattern.MatchString(strings.TrimSpace(message))
}

// LooksLikeFieldValue decides, without calling the intent proposer, whether
// the user's message is plausibly a value for the field most recently asked
// about. Rules in order: greetings are never values; free-text fields accept
// nearly anything (single tokens like a name included); dropdowns accept
// only an exact case-insensitive option match; other types demand enough
// content to avoid false positives on short ambiguous replies.
func LooksLikeFieldValue(message string, field *models.FieldDefinition, level Strictness) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" || IsGreetingOrQuestion(trimmed) {
		return false
	}

	switch {
	case field.FieldType.IsText():
		if level == Strict {
			return len(trimmed) > 3
		}
		return len(trimmed) >= 2
	case field.FieldType == models.FieldTypeDropdown:
		return matchOption(field.DropDownOptions, trimmed) != ""
	default:
		if level == Strict {
			return len(trimmed) > 3
		}
		return len(trimmed) >= 2 && (len(strings.Fields(trimmed)) > 1 || len(trimmed) > 5)
	}
}

// matchOption returns the canonical-cased option matching value
// case-insensitively, or "" when none matches.
func matchOption(options []string, value string) string {
	for _, opt := range options {
		if strings.EqualFold(opt, value) {
			return opt
		}
	}
	return ""
}
