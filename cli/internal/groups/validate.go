package groups

import (
	"fmt"
	"sort"
	"strings"

	"carve/cli/internal/diff"
	"carve/cli/internal/hunk"
)

// Report carries the non-fatal findings of Validate. Hard failures (missing
// coverage) are returned as errors instead.
type Report struct {
	Warnings []string
}

// Validate checks a batch of groups against the diff they were proposed for:
//   - every file touched by the diff must appear in at least one group
//     (missing coverage is a hard error naming each missing file once);
//   - a file claimed by more than one group is a warning only;
//   - implausible selectors (start > end, start = 0, empty pattern) are
//     warnings, never failures.
func Validate(gs []Group, diffText string) (*Report, error) {
	report := &Report{}

	coverage := make(map[string]int)
	for _, g := range gs {
		for _, fc := range g.Changes {
			coverage[fc.Path]++
		}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, path := range diff.FilePaths(diffText) {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		if coverage[path] == 0 {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("groups do not cover all changed files: %s", strings.Join(missing, ", "))
	}

	for path, count := range coverage {
		if count > 1 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("file %s appears in %d groups", path, count))
		}
	}
	sort.Strings(report.Warnings)

	for i, g := range gs {
		for _, fc := range g.Changes {
			for _, sel := range fc.Hunks {
				if w := selectorWarning(sel); w != "" {
					report.Warnings = append(report.Warnings,
						fmt.Sprintf("group %d, file %s: %s", i, fc.Path, w))
				}
			}
		}
	}

	return report, nil
}

func selectorWarning(sel hunk.Selector) string {
	switch sel.Kind {
	case hunk.SelectLines:
		if sel.Start > sel.End {
			return fmt.Sprintf("line range %d-%d has start after end", sel.Start, sel.End)
		}
		if sel.Start == 0 {
			return "line range starts at 0; diffs are 1-indexed"
		}
	case hunk.SelectSearch:
		if sel.Pattern == "" {
			return "empty search pattern"
		}
	}
	return ""
}
