// Package hunk splits a file's diff content into hunks and resolves flexible
// hunk selectors (whole file, line range, text search) to concrete hunk
// headers. Header identity is fuzzy: headers are normalized to a
// digits/comma/hyphen/plus string before comparison, so whitespace or
// context-heading drift between a remembered header and the live one does not
// break matching.
package hunk

import (
	"regexp"
	"strconv"
	"strings"
)

// headerRegex captures the four range integers from a hunk header. A field
// without a comma means count = 1.
var headerRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Hunk is one "@@" block within a file's diff content. Lines holds the header
// line followed by the body lines, verbatim.
type Hunk struct {
	Header   string
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string
}

// OldRange returns the inclusive span of original-file lines this hunk
// touches. A pure insertion (OldCount = 0) has no deletable span and
// collapses to (OldStart, OldStart).
func (h Hunk) OldRange() (start, end int) {
	if h.OldCount == 0 {
		return h.OldStart, h.OldStart
	}
	return h.OldStart, h.OldStart + h.OldCount - 1
}

// ParseHunks splits a FileDiff's content (post-header) into hunks at each
// "@@ " boundary. Content without any hunk header returns nil.
func ParseHunks(content string) []Hunk {
	if content == "" {
		return nil
	}
	var hunks []Hunk
	var cur *Hunk
	for _, line := range strings.Split(content, "\n") {
		if m := headerRegex.FindStringSubmatch(line); m != nil {
			if cur != nil {
				hunks = append(hunks, *cur)
			}
			cur = &Hunk{
				Header:   line,
				OldStart: atoiDefault(m[1], 0),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 0),
				NewCount: atoiDefault(m[4], 1),
				Lines:    []string{line},
			}
			continue
		}
		if cur != nil {
			cur.Lines = append(cur.Lines, line)
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks
}

// Text returns the hunk's full text (header + body) without a trailing newline.
func (h Hunk) Text() string {
	return strings.Join(h.Lines, "\n")
}

// NormalizeHeader strips every character except digits, comma, hyphen and
// plus. Two headers are the same hunk iff their normalized forms are equal;
// this is the single identity rule used by both resolution and patch
// reconstruction.
func NormalizeHeader(header string) string {
	var b strings.Builder
	b.Grow(len(header))
	for _, r := range header {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
