package hunk

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SelectorKind discriminates the closed set of selector forms.
type SelectorKind int

const (
	// SelectAll picks every hunk in the file.
	SelectAll SelectorKind = iota
	// SelectLines picks hunks whose old-line range intersects [Start, End]
	// (1-indexed, inclusive, measured against the original file).
	SelectLines
	// SelectSearch picks hunks by header match (patterns starting with "@@")
	// or by substring search over any hunk line.
	SelectSearch
)

// Selector is a tagged variant over All / Lines / Search. Use the
// constructors; the zero value is All.
type Selector struct {
	Kind    SelectorKind
	Start   int
	End     int
	Pattern string
}

// All selects every hunk in the file.
func All() Selector { return Selector{Kind: SelectAll} }

// Lines selects hunks intersecting [start, end] on original-file lines.
func Lines(start, end int) Selector {
	return Selector{Kind: SelectLines, Start: start, End: end}
}

// Search selects hunks matching pattern (header match for "@@..." patterns,
// substring otherwise).
func Search(pattern string) Selector {
	return Selector{Kind: SelectSearch, Pattern: pattern}
}

// String renders the selector for error messages.
func (s Selector) String() string {
	switch s.Kind {
	case SelectLines:
		return fmt.Sprintf("lines %d-%d", s.Start, s.End)
	case SelectSearch:
		return fmt.Sprintf("pattern %q", s.Pattern)
	default:
		return "ALL"
	}
}

// lineRangeRegex matches the legacy "<start>-<end>" string encoding.
var lineRangeRegex = regexp.MustCompile(`^(\d+)-(\d+)$`)

// selectorObject is the structured JSON form. Lines uses start/end; Search
// uses pattern.
type selectorObject struct {
	Start   *int    `json:"start,omitempty"`
	End     *int    `json:"end,omitempty"`
	Pattern *string `json:"pattern,omitempty"`
}

// MarshalJSON emits the canonical encodings: the string "ALL", or the
// {"start","end"} / {"pattern"} objects.
func (s Selector) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SelectLines:
		return json.Marshal(selectorObject{Start: &s.Start, End: &s.End})
	case SelectSearch:
		return json.Marshal(selectorObject{Pattern: &s.Pattern})
	default:
		return json.Marshal("ALL")
	}
}

// UnmarshalJSON accepts every historical encoding, tried in fixed priority
// order:
//
//	"ALL"                 -> All
//	{"start":n,"end":n}   -> Lines
//	"<start>-<end>"       -> Lines
//	{"pattern":s}         -> Search
//	"@@ ..." string       -> Search (legacy hunk-header match)
//	any other string      -> Search (free-text pattern)
func (s *Selector) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = selectorFromString(str)
		return nil
	}
	var obj selectorObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("hunk selector: unrecognized encoding %s", data)
	}
	switch {
	case obj.Start != nil && obj.End != nil:
		*s = Lines(*obj.Start, *obj.End)
	case obj.Pattern != nil:
		*s = Search(*obj.Pattern)
	default:
		return fmt.Errorf("hunk selector: object needs start/end or pattern: %s", data)
	}
	return nil
}

func selectorFromString(str string) Selector {
	if str == "ALL" {
		return All()
	}
	if m := lineRangeRegex.FindStringSubmatch(str); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		return Lines(start, end)
	}
	// "@@..." legacy headers and free text both resolve via Search.
	return Search(str)
}

// isHeaderPattern reports whether a search pattern should be matched against
// hunk headers rather than hunk body text.
func isHeaderPattern(pattern string) bool {
	return strings.HasPrefix(pattern, "@@")
}
