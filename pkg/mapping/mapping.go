// Package mapping resolves arbitrary tabular headers onto the fixed logical
// schema used by the ingestion pipeline.
//
// Sources can be very wide (1,000+ columns) and name their columns freely.
// Resolve inspects only the header list and produces an immutable
// ColumnMapping binding logical roles (record id, summary, description,
// comments, timestamp) to source columns. The mapping is computed once per
// job and never re-inspected per record.
package mapping

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ColumnMapping binds logical roles to source column names.
//
// A ColumnMapping is immutable once produced. Empty strings mean the role did
// not resolve. Comments are ordered chronologically (by numeric suffix, then
// source order). Extra preserves unmapped columns in source order so nothing
// is dropped silently.
type ColumnMapping struct {
	RecordID    string
	Summary     string
	Description string
	Comments    []string
	Timestamp   string
	Extra       []string
}

// MappingError reports that the header list could not be mapped onto the
// logical schema. It is fatal to the submitting job but not to the runner.
type MappingError struct {
	Fields []string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("column mapping failed: %s (saw %d columns)", e.Reason, len(e.Fields))
}

// Synonym sets per logical role, in priority order. Matching is
// case-insensitive and punctuation-normalized.
var (
	recordIDSynonyms  = []string{"issue key", "issue id", "ticket id", "key", "id"}
	summarySynonyms   = []string{"summary", "issue summary", "title", "subject"}
	descSynonyms      = []string{"description", "details", "body"}
	timestampSynonyms = []string{"created", "created at", "date", "timestamp", "updated"}
)

// Resolve maps an ordered header list onto a ColumnMapping.
//
// Rules:
//   - Matching normalizes case, punctuation, and whitespace.
//   - Ties (several columns matching one role) resolve to the first match in
//     source column order.
//   - Columns whose normalized name starts with "comment" are comment columns,
//     ordered by trailing number ("Comment.1" before "Comment.2"), with
//     unnumbered comment columns first.
//   - At least one of summary or description must resolve; otherwise a
//     *MappingError is returned.
//
// Resolve is a pure function: same input, same output, no side effects.
func Resolve(fields []string) (*ColumnMapping, error) {
	m := &ColumnMapping{}
	claimed := make(map[int]bool, len(fields))

	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = normalize(f)
	}

	type commentCol struct {
		name  string
		order int
		pos   int
	}
	var comments []commentCol

	for i, norm := range normalized {
		if strings.HasPrefix(norm, "comment") {
			comments = append(comments, commentCol{
				name:  fields[i],
				order: commentSuffix(fields[i]),
				pos:   i,
			})
			claimed[i] = true
		}
	}
	sort.SliceStable(comments, func(a, b int) bool {
		if comments[a].order != comments[b].order {
			return comments[a].order < comments[b].order
		}
		return comments[a].pos < comments[b].pos
	})
	for _, c := range comments {
		m.Comments = append(m.Comments, c.name)
	}

	m.RecordID = firstMatch(fields, normalized, claimed, recordIDSynonyms)
	m.Summary = firstMatch(fields, normalized, claimed, summarySynonyms)
	m.Description = firstMatch(fields, normalized, claimed, descSynonyms)
	m.Timestamp = firstMatch(fields, normalized, claimed, timestampSynonyms)

	if m.Summary == "" && m.Description == "" {
		return nil, &MappingError{
			Fields: append([]string(nil), fields...),
			Reason: "no summary or description column found",
		}
	}

	for i, f := range fields {
		if !claimed[i] {
			m.Extra = append(m.Extra, f)
		}
	}

	return m, nil
}

// TextColumns returns the mapped text-bearing columns in enrichment order:
// summary, description, then comments.
func (m *ColumnMapping) TextColumns() []string {
	out := make([]string, 0, 2+len(m.Comments))
	if m.Summary != "" {
		out = append(out, m.Summary)
	}
	if m.Description != "" {
		out = append(out, m.Description)
	}
	out = append(out, m.Comments...)
	return out
}

// firstMatch scans synonyms in priority order and, within each synonym, the
// fields in source order, returning the first unclaimed hit.
func firstMatch(fields, normalized []string, claimed map[int]bool, synonyms []string) string {
	for _, syn := range synonyms {
		for i, norm := range normalized {
			if claimed[i] {
				continue
			}
			if norm == syn {
				claimed[i] = true
				return fields[i]
			}
		}
	}
	return ""
}

// commentSuffix extracts a trailing number from a comment column name
// ("Comment.3" => 3). Unnumbered columns sort first.
func commentSuffix(name string) int {
	for _, sep := range []string{".", " ", "_", "-"} {
		if idx := strings.LastIndex(name, sep); idx >= 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(name[idx+1:])); err == nil {
				return n
			}
		}
	}
	return 0
}

// normalize lowercases and collapses punctuation/whitespace so that
// "Issue-Key", "issue_key", and "Issue Key" all compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
