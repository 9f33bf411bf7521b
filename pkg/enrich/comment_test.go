package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCommentWithMetadata(t *testing.T) {
	c := ParseComment("10/Oct/25 11:45 AM;5f05c9e30b38b1002265;Customer confirmed the fix works.")

	assert.True(t, c.Parsed)
	assert.Equal(t, "5f05c9e30b38b1002265", c.AuthorID)
	assert.Equal(t, "Customer confirmed the fix works.", c.Text)
	assert.Equal(t, time.Date(2025, time.October, 10, 11, 45, 0, 0, time.UTC), c.Timestamp)
}

func TestParseCommentPM(t *testing.T) {
	c := ParseComment("03/Jan/24 2:05 PM;user-1;escalating to tier two")

	assert.True(t, c.Parsed)
	assert.Equal(t, 14, c.Timestamp.Hour())
	assert.Equal(t, 5, c.Timestamp.Minute())
}

func TestParseCommentMultilineBody(t *testing.T) {
	c := ParseComment("10/Oct/25 11:45 AM;author;first line\nsecond line")

	assert.True(t, c.Parsed)
	assert.Contains(t, c.Text, "second line")
}

func TestParseCommentWithoutMetadataPassesThrough(t *testing.T) {
	c := ParseComment("just a plain comment; with a stray semicolon")

	assert.False(t, c.Parsed)
	assert.Equal(t, "just a plain comment; with a stray semicolon", c.Text)
	assert.Empty(t, c.AuthorID)
}

func TestParseCommentEmpty(t *testing.T) {
	c := ParseComment("   ")

	assert.False(t, c.Parsed)
	assert.Empty(t, c.Text)
}
