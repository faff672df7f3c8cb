package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanToText(t *testing.T) {
	c := NewStrictCleaner()
	assert.Equal(t, "Hello & world", c.CleanToText("<div class=\"x\">\n  <b>Hello</b> &amp; <i>world</i>\n</div>"))
	assert.Equal(t, "", c.CleanToText(`<script>alert(1)</script>`))
}

func TestTruncate(t *testing.T) {
	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, Truncate(exact, 100))
	assert.Equal(t, exact+"...", Truncate(exact+"b", 100))

	// counted in characters, not bytes
	wide := strings.Repeat("é", 101)
	assert.Equal(t, strings.Repeat("é", 100)+"...", Truncate(wide, 100))
}

func TestPreview(t *testing.T) {
	c := NewStrictCleaner()
	assert.Equal(t, "<b>x</b>", c.Preview("<b>x</b>", false))
	assert.Equal(t, "x", c.Preview("<b>x</b>", true))
}
