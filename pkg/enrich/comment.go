package enrich

import (
	"regexp"
	"strings"
	"time"
)

// Exports embed comment metadata inline, e.g.
// "10/Oct/25 11:45 AM;5f05c9e30b38b1002265;Customer confirmed the fix".
var commentPattern = regexp.MustCompile(`(?s)^(\d{2}/\w{3}/\d{2}\s+\d{1,2}:\d{2}\s+[AP]M);([^;]+);(.+)`)

const commentTimeLayout = "02/Jan/06 3:04 PM"

// Comment is one comment cell split into metadata and body text.
type Comment struct {
	Timestamp time.Time
	AuthorID  string
	Text      string
	// Parsed reports whether the metadata prefix was present and valid.
	// When false, Text holds the whole raw cell.
	Parsed bool
}

// ParseComment splits a raw comment cell into timestamp, author, and body.
// Cells without the metadata prefix pass through untouched so enrichment
// still sees their full text.
func ParseComment(raw string) Comment {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Comment{}
	}

	m := commentPattern.FindStringSubmatch(raw)
	if m == nil {
		return Comment{Text: raw}
	}

	c := Comment{
		AuthorID: strings.TrimSpace(m[2]),
		Text:     strings.TrimSpace(m[3]),
		Parsed:   true,
	}
	if ts, err := time.Parse(commentTimeLayout, normalizeSpaces(m[1])); err == nil {
		c.Timestamp = ts
	}
	return c
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
