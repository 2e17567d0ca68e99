// Package normalize converts free-text answers into typed field values.
//
// It strips leading filler phrases from text answers and parses free-form
// date expressions into the YYYY-MM-DDTHH:mm:ss wire format.
package normalize

import (
	"regexp"
	"strings"
)

// prefixPatterns are tried in priority order against the whole message; the
// last capture group of the first match wins. "%s" is the quoted field name.
// All patterns anchor on full-phrase prefixes that are absent after
// stripping, which is what makes ExtractCleanValue idempotent.
var prefixPatterns = []string{
	`^(?i)(his|her|my|the|their|our)\s+name\s+is\s+(.+)$`,
	`^(?i)(his|her|my|the|their|our)\s+%s\s+is\s+(.+)$`,
	`^(?i)it\s+is\s+(.+)$`,
	`^(?i)it's\s+(.+)$`,
	`^(?i)that\s+is\s+(.+)$`,
	`^(?i)that's\s+(.+)$`,
	`^(?i)the\s+%s\s+is\s+(.+)$`,
	`^(?i)the\s+%s\s+was\s+(.+)$`,
	`^(?i)%s\s+is\s+(.+)$`,
	`^(?i)%s\s+was\s+(.+)$`,
	`^(?i)(it|that|this)\s+(is|was|will be)\s+(.+)$`,
	`^(?i)(i|we|they)\s+(think|believe|know|say|said)\s+(it\s+is|that|it)\s+(.+)$`,
}

// ExtractCleanValue strips leading filler phrases ("my name is ...",
// "it is ...", "the <fieldName> was ...") from a free-text answer. If no
// pattern matches, the trimmed input is returned unchanged. Applies only to
// free-text field types; re-applying to an already-stripped value is a no-op.
func ExtractCleanValue(text, fieldName string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}
	quoted := regexp.QuoteMeta(strings.ToLower(fieldName))
	for _, pattern := range prefixPatterns {
		expr := strings.ReplaceAll(pattern, "%s", quoted)
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		match := re.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		extracted := strings.TrimSpace(match[len(match)-1])
		if extracted != "" {
			return extracted
		}
	}
	return trimmed
}
