package cleaner

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// PreviewLimit is how many characters of a cell the preview shows
const PreviewLimit = 100

// Cleaner turns cell values into short single-purpose previews
type Cleaner struct {
	policy *bluemonday.Policy
}

// NewStrictCleaner creates a cleaner that strips ALL HTML
func NewStrictCleaner() *Cleaner {
	return &Cleaner{policy: bluemonday.StrictPolicy()}
}

// CleanToText removes all markup and returns the remaining text with
// entities decoded and whitespace runs collapsed
func (c *Cleaner) CleanToText(markup string) string {
	text := html.UnescapeString(c.policy.Sanitize(markup))
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts s to limit characters and marks the cut with "..."
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}

// Preview prepares a cell for display. Markup is reduced to text first
// when isHTML is set; the stored value is never changed.
func (c *Cleaner) Preview(value string, isHTML bool) string {
	if isHTML {
		value = c.CleanToText(value)
	}
	return Truncate(value, PreviewLimit)
}
