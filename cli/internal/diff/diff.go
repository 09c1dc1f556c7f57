// Package diff parses unified git diff text into a per-file model and
// reconstructs it back to text.
//
// # Sections
// A file section starts at a "diff --git" line and runs until the next one.
// Everything before the first hunk header (index lines, mode changes, rename
// markers, "---"/"+++", binary notices) is the file's Header; everything from
// the first "@@ " line on is the file's Content.
//
// # Binary files
// Git emits "Binary files a/x b/x differ" instead of hunks. Such files get
// Binary=true, an empty Content, and the notice stays inside Header.
//
// # Permissiveness
// Upstream diff generators vary, so malformed or unusual sections are kept
// rather than rejected: a section with no hunks (mode-only change, pure
// rename) yields a FileDiff with empty Content, which is valid.
//
// # Round trip
// Reconstruct is the inverse of Parse: for well-formed input ending in a
// newline, Reconstruct(Parse(d)) == d byte for byte.
package diff

import (
	"regexp"
	"strings"
)

const binaryMarker = "Binary files "

// hunkHeaderRegex matches @@ -oldStart,oldCount +newStart,newCount @@ with
// optional counts and optional trailing section heading.
var hunkHeaderRegex = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+\d+(?:,\d+)? @@`)

// diffGitRegex extracts the b/ path from a "diff --git" line.
var diffGitRegex = regexp.MustCompile(`^diff --git a/(.+?) b/(.+)$`)

// FileDiff is one file's change. Header and Content are disjoint; their
// concatenation (newline-joined when Content is non-empty) is the file's
// original diff text.
type FileDiff struct {
	Filename  string
	Header    string
	Content   string
	Additions int
	Deletions int
	Binary    bool
}

// Parse splits raw unified diff text into FileDiff records, one per
// "diff --git" section, preserving original order. Empty input returns nil.
func Parse(text string) []FileDiff {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var files []FileDiff
	var cur *FileDiff
	var headerLines, contentLines []string
	inHunk := false

	flush := func() {
		if cur == nil {
			return
		}
		cur.Header = strings.Join(headerLines, "\n")
		cur.Content = strings.Join(contentLines, "\n")
		files = append(files, *cur)
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			cur = &FileDiff{Filename: parseDiffGitPath(line)}
			headerLines = []string{line}
			contentLines = nil
			inHunk = false
			continue
		}
		if cur == nil {
			// Preamble before the first section (unusual); skip.
			continue
		}
		if !inHunk && hunkHeaderRegex.MatchString(line) {
			inHunk = true
		}
		if inHunk {
			contentLines = append(contentLines, line)
			if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
				cur.Additions++
			}
			if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
				cur.Deletions++
			}
			continue
		}
		headerLines = append(headerLines, line)
		if strings.HasPrefix(line, binaryMarker) {
			cur.Binary = true
		}
	}
	flush()
	return files
}

// Reconstruct concatenates each file's Header and Content back into diff
// text. Content-less sections contribute Header alone. Output ends with a
// newline so the result is directly usable as a patch.
func Reconstruct(files []FileDiff) string {
	if len(files) == 0 {
		return ""
	}
	sections := make([]string, 0, len(files))
	for _, fd := range files {
		sections = append(sections, Section(fd))
	}
	return strings.Join(sections, "\n") + "\n"
}

// Section returns one file's diff text without a trailing newline.
func Section(fd FileDiff) string {
	if fd.Content == "" {
		return fd.Header
	}
	return fd.Header + "\n" + fd.Content
}

// FilePaths returns the b/ path of every "diff --git" line in text, in
// order. Used to check that a set of change groups covers every touched file.
func FilePaths(text string) []string {
	var paths []string
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		if p := parseDiffGitPath(line); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// TotalAdditions sums addition counts across files.
func TotalAdditions(files []FileDiff) int {
	n := 0
	for _, fd := range files {
		n += fd.Additions
	}
	return n
}

// TotalDeletions sums deletion counts across files.
func TotalDeletions(files []FileDiff) int {
	n := 0
	for _, fd := range files {
		n += fd.Deletions
	}
	return n
}

// parseDiffGitPath extracts the post-image path from "diff --git a/x b/x".
// Falls back to whitespace splitting when the regex does not match (e.g.
// unusual quoting).
func parseDiffGitPath(line string) string {
	if m := diffGitRegex.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	fields := strings.Fields(strings.TrimPrefix(line, "diff --git "))
	if len(fields) >= 2 {
		return strings.TrimPrefix(fields[1], "b/")
	}
	return ""
}
