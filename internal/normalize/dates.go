// Package normalize: free-form date parsing.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/formpipe/formpipe/internal/models"
)

var (
	isoPattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)
	slashPattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	dashPattern  = regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`)
	timePattern  = regexp.MustCompile(`(\d{1,2}):(\d{2})(?::(\d{2}))?`)
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

var monthAbbrs = []string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

// dayFirst and monthFirst hold, per calendar month, the "2 march [2024]" and
// "march 2 [2024]" patterns. Months are tried in calendar order, day-first
// before month-first within each month.
var (
	dayFirst   [12]*regexp.Regexp
	monthFirst [12]*regexp.Regexp
)

func init() {
	for i := 0; i < 12; i++ {
		month := fmt.Sprintf(`(?:%s|%s)`, monthNames[i], monthAbbrs[i])
		dayFirst[i] = regexp.MustCompile(`(?i)(\d{1,2})\s+` + month + `(?:\s+(\d{4}))?`)
		monthFirst[i] = regexp.MustCompile(`(?i)` + month + `\s+(\d{1,2})(?:\s+(\d{4}))?`)
	}
}

// genericLayouts are the last-resort parse formats, tried in order.
var genericLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"02 Jan 2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseAndFormatDate normalizes a free-form date expression into
// YYYY-MM-DDTHH:mm:ss. Resolution order, first match wins: ISO passthrough,
// relative keywords (today/yesterday/tomorrow), month-name forms, slash form
// MM/DD/YYYY, dash form MM-DD-YYYY, then generic layout parsing with a year
// correction when the result falls outside [1900, 2100].
//
// For DATE_AND_TIME an embedded HH:MM[:SS] token is extracted when present,
// otherwise the parse's own clock time is kept; DATE always normalizes the
// time of day to 00:00:00. Returns ok=false when no rule yields a valid date.
func ParseAndFormatDate(input string, fieldType models.FieldType) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	if isoPattern.MatchString(trimmed) {
		return trimmed, true
	}

	now := time.Now()
	lower := strings.ToLower(trimmed)

	var date time.Time
	found := true
	switch {
	case strings.Contains(lower, "today"):
		date = now
	case strings.Contains(lower, "yesterday"):
		date = now.AddDate(0, 0, -1)
	case strings.Contains(lower, "tomorrow"):
		date = now.AddDate(0, 0, 1)
	default:
		found = false
	}

	if !found {
		date, found = parseMonthName(trimmed, now.Year())
	}
	if !found {
		date, found = parseDelimited(trimmed, slashPattern)
	}
	if !found {
		date, found = parseDelimited(trimmed, dashPattern)
	}
	if !found {
		date, found = parseGeneric(trimmed, now.Year())
	}
	if !found {
		return "", false
	}

	year, month, day := date.Date()
	if fieldType != models.FieldTypeDateAndTime {
		return fmt.Sprintf("%04d-%02d-%02dT00:00:00", year, month, day), true
	}
	hour, minute, second := date.Clock()
	if m := timePattern.FindStringSubmatch(trimmed); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		second = 0
		if m[3] != "" {
			second, _ = strconv.Atoi(m[3])
		}
	}
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", year, month, day, hour, minute, second), true
}

// parseMonthName tries "2 march [2024]" and "march 2 [2024]" for all twelve
// months in calendar order. A missing year defaults to the current year.
func parseMonthName(s string, currentYear int) (time.Time, bool) {
	for i := 0; i < 12; i++ {
		if m := dayFirst[i].FindStringSubmatch(s); m != nil {
			return makeDate(yearOrDefault(m[2], currentYear), i+1, atoi(m[1]))
		}
		if m := monthFirst[i].FindStringSubmatch(s); m != nil {
			return makeDate(yearOrDefault(m[2], currentYear), i+1, atoi(m[1]))
		}
	}
	return time.Time{}, false
}

// parseDelimited handles MM/DD/YYYY and MM-DD-YYYY. A leading component that
// cannot be a month is treated as the day.
func parseDelimited(s string, pattern *regexp.Regexp) (time.Time, bool) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, day, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
	if month > 12 && day <= 12 {
		month, day = day, month
	}
	return makeDate(year, month, day)
}

// parseGeneric is the last resort: a fixed list of layouts. A parsed year
// outside [1900, 2100] means the layout misread the input, so the day and
// month are reinterpreted against the current year.
func parseGeneric(s string, currentYear int) (time.Time, bool) {
	for _, layout := range genericLayouts {
		date, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if y := date.Year(); y < 1900 || y > 2100 {
			return makeDate(currentYear, int(date.Month()), date.Day())
		}
		return date, true
	}
	return time.Time{}, false
}

// makeDate builds a validated calendar date. time.Date silently normalizes
// overflow (Feb 31 -> Mar 2), so the components are round-trip checked.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

func yearOrDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	return atoi(s)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
