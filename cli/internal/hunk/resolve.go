package hunk

import (
	"fmt"
	"strings"

	"carve/cli/internal/diff"
)

// Resolve applies an ordered selector sequence to one file of diffText and
// returns the matched hunk headers: union across selectors, first-seen order,
// exact de-duplication. An All selector short-circuits and returns every
// header regardless of the other selectors. A selector matching nothing is an
// error carrying the file, the selector, and a nearest-hunk hint for line
// ranges.
func Resolve(diffText, path string, selectors []Selector) ([]string, error) {
	hunks, err := FileHunks(diffText, path)
	if err != nil {
		return nil, err
	}

	for _, sel := range selectors {
		if sel.Kind == SelectAll {
			return allHeaders(hunks), nil
		}
	}

	var headers []string
	seen := make(map[string]struct{})
	for _, sel := range selectors {
		matched, err := resolveOne(hunks, path, sel)
		if err != nil {
			return nil, err
		}
		for _, h := range matched {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			headers = append(headers, h)
		}
	}
	return headers, nil
}

// FileHunks parses diffText and returns the hunks of the named file.
func FileHunks(diffText, path string) ([]Hunk, error) {
	for _, fd := range diff.Parse(diffText) {
		if fd.Filename == path {
			return ParseHunks(fd.Content), nil
		}
	}
	return nil, fmt.Errorf("file %s not found in diff", path)
}

func allHeaders(hunks []Hunk) []string {
	headers := make([]string, 0, len(hunks))
	for _, h := range hunks {
		headers = append(headers, h.Header)
	}
	return headers
}

func resolveOne(hunks []Hunk, path string, sel Selector) ([]string, error) {
	switch sel.Kind {
	case SelectAll:
		return allHeaders(hunks), nil
	case SelectLines:
		return resolveLines(hunks, path, sel.Start, sel.End)
	case SelectSearch:
		return resolveSearch(hunks, path, sel.Pattern)
	}
	return nil, fmt.Errorf("unknown selector kind %d for %s", sel.Kind, path)
}

func resolveLines(hunks []Hunk, path string, start, end int) ([]string, error) {
	var matched []string
	for _, h := range hunks {
		hs, he := h.OldRange()
		if !(end < hs || start > he) {
			matched = append(matched, h.Header)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}
	msg := fmt.Sprintf("no changes in range %d-%d of %s", start, end, path)
	if hs, he, ok := nearestHunk(hunks, start, end); ok {
		msg += fmt.Sprintf(" (nearest hunk: lines %d-%d)", hs, he)
	}
	return nil, fmt.Errorf("%s", msg)
}

// nearestHunk returns the old-line range of the hunk closest to [start, end].
// The hint lets an upstream classifier correct an off-by-N range guess
// without re-deriving positions from the diff.
func nearestHunk(hunks []Hunk, start, end int) (hs, he int, ok bool) {
	best := -1
	for _, h := range hunks {
		s, e := h.OldRange()
		var dist int
		switch {
		case e < start:
			dist = start - e
		case s > end:
			dist = s - end
		default:
			dist = 0
		}
		if best < 0 || dist < best {
			best = dist
			hs, he, ok = s, e, true
		}
	}
	return hs, he, ok
}

func resolveSearch(hunks []Hunk, path, pattern string) ([]string, error) {
	var matched []string
	if isHeaderPattern(pattern) {
		want := NormalizeHeader(pattern)
		for _, h := range hunks {
			if NormalizeHeader(h.Header) == want {
				matched = append(matched, h.Header)
			}
		}
	} else {
		for _, h := range hunks {
			for _, line := range h.Lines {
				if strings.Contains(line, pattern) {
					matched = append(matched, h.Header)
					break
				}
			}
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no hunk matching %q in %s", pattern, path)
	}
	return matched, nil
}
