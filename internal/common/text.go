package common

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	lineBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
	spoiler     = regexp.MustCompile(`(?s)~!.*?!~`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	markdownImg = regexp.MustCompile(`(?i)img\d*%?\(([^)]*)\)`)
)

// Turn an AniList description (HTML with AniList markup) into plain text.
// Spoilers are hidden completely
func CleanDescription(description string) string {
	text := lineBreak.ReplaceAllString(description, "\n")
	text = htmlTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = spoiler.ReplaceAllString(text, "||spoiler||")
	text = markdownImg.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Cut the text to at most limit runes, ending with an ellipsis if cut
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	if limit == 1 {
		return "…"
	}
	return strings.TrimRightFunc(string(runes[:limit-1]), func(r rune) bool { return r == ' ' || r == '\n' }) + "…"
}

// Value or a placeholder when the value is empty
func OrPlaceholder(value string, placeholder string) string {
	if strings.TrimSpace(value) == "" {
		return placeholder
	}
	return value
}

// Join the values, or return the placeholder if there are none
func JoinOr(values []string, separator string, placeholder string) string {
	nonEmpty := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			nonEmpty = append(nonEmpty, value)
		}
	}
	if len(nonEmpty) == 0 {
		return placeholder
	}
	return strings.Join(nonEmpty, separator)
}

// Humanise an amount of minutes: "3 days 4 hours", "45 minutes"
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0 minutes"
	}
	days := minutes / (60 * 24)
	hours := minutes / 60 % 24
	mins := minutes % 60

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if days == 0 && mins > 0 {
		parts = append(parts, plural(mins, "minute"))
	}
	return strings.Join(parts, " ")
}

// Describe a moment relative to now: "in 2 days", "5 minutes ago", "just now"
func FormatRelative(moment time.Time, now time.Time) string {
	diff := moment.Sub(now)
	future := diff > 0
	if !future {
		diff = -diff
	}

	var amount string
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		amount = plural(int(diff/time.Minute), "minute")
	case diff < 24*time.Hour:
		amount = plural(int(diff/time.Hour), "hour")
	default:
		amount = plural(int(diff/(24*time.Hour)), "day")
	}

	if future {
		return "in " + amount
	}
	return amount + " ago"
}

// Format a date where any of the parts may be unknown (zero)
func FormatFuzzyDate(year, month, day int) string {
	switch {
	case year == 0:
		return "?"
	case month == 0:
		return fmt.Sprintf("%d", year)
	case day == 0:
		return fmt.Sprintf("%s %d", time.Month(month).String()[:3], year)
	default:
		return fmt.Sprintf("%d %s %d", day, time.Month(month).String()[:3], year)
	}
}

// Convert SCREAMING_SNAKE enums from the API into "Screaming snake"
func HumaniseEnum(value string) string {
	if value == "" {
		return ""
	}
	switch value {
	case "TV", "OVA", "ONA":
		return value
	case "TV_SHORT":
		return "TV short"
	}
	words := strings.ToLower(strings.ReplaceAll(value, "_", " "))
	return strings.ToUpper(words[:1]) + words[1:]
}

func plural(amount int, unit string) string {
	if amount == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", amount, unit)
}
