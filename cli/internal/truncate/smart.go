package truncate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"carve/cli/internal/diff"
	"carve/cli/internal/groups"
	"carve/cli/internal/tokens"
)

// Priority scores (higher is kept first when budget is short).
const (
	priorityBinary   = 0
	priorityLow      = 10
	priorityTest     = 20
	priorityDefault  = 40
	priorityManifest = 60
	prioritySource   = 80

	// importantPriority is the threshold above which one file may consume
	// half the remaining budget (truncated) in the packing fallback.
	importantPriority = 50
)

// sourceExtensions are known source, shell and SQL extensions, scored high.
var sourceExtensions = map[string]struct{}{
	".go": {}, ".rs": {}, ".c": {}, ".h": {}, ".cpp": {}, ".cc": {}, ".hpp": {},
	".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".java": {},
	".rb": {}, ".kt": {}, ".swift": {}, ".scala": {}, ".php": {}, ".cs": {},
	".zig": {}, ".sh": {}, ".bash": {}, ".sql": {},
}

// DefaultLowPriorityExtensions are scored low unless overridden by config.
var DefaultLowPriorityExtensions = []string{".md", ".txt", ".rst", ".svg"}

// Options configures Smart truncation. Zero value uses defaults: no ignore
// patterns, DefaultLowPriorityExtensions, no token budget.
type Options struct {
	// IgnorePatterns are doublestar globs; matching files are excluded
	// entirely (matched against the full path and the base name).
	IgnorePatterns []string
	// LowPriorityExtensions override DefaultLowPriorityExtensions when set.
	LowPriorityExtensions []string
	// TokenBudget, when positive, derives a byte budget that wins over
	// maxLength when tighter.
	TokenBudget int
}

// Smart returns diff text for files that fits the effective budget:
// min(maxLength, byte budget derived from TokenBudget). Ignore-listed files
// are excluded entirely. When everything fits, the reconstruction is
// returned unchanged. Otherwise headers are fitted first (so the consumer
// always sees the full set of files touched) with remaining budget spread
// evenly over content; if even the headers together exceed budget, files are
// packed whole by descending priority until the budget runs out. A count of
// omitted files is appended whenever any were dropped.
func Smart(files []diff.FileDiff, maxLength int, opts Options) string {
	kept := make([]diff.FileDiff, 0, len(files))
	for _, fd := range files {
		if ignored(fd.Filename, opts.IgnorePatterns) {
			continue
		}
		kept = append(kept, fd)
	}
	if len(kept) == 0 {
		return ""
	}

	lowExts := opts.LowPriorityExtensions
	if lowExts == nil {
		lowExts = DefaultLowPriorityExtensions
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return priority(kept[i], lowExts) > priority(kept[j], lowExts)
	})

	effective := maxLength
	if tb := tokens.BudgetBytes(opts.TokenBudget); tb > 0 && tb < effective {
		effective = tb
	}

	full := diff.Reconstruct(kept)
	if len(full) <= effective {
		return full
	}

	headerTotal := 0
	for _, fd := range kept {
		headerTotal += len(fd.Header) + 1
	}
	if headerTotal <= effective {
		perFile := (effective - headerTotal) / len(kept)
		out := make([]diff.FileDiff, len(kept))
		for i, fd := range kept {
			out[i] = File(fd, len(fd.Header)+1+perFile)
		}
		return diff.Reconstruct(out)
	}

	return packByPriority(kept, effective, lowExts)
}

// packByPriority includes whole files in priority order until the budget is
// exhausted. Binaries are skipped. One file at or above importantPriority
// that no longer fits whole may consume up to half the remaining budget in
// truncated form; packing stops after that.
func packByPriority(kept []diff.FileDiff, budget int, lowExts []string) string {
	var included []diff.FileDiff
	omitted := 0
	for i, fd := range kept {
		if fd.Binary {
			omitted++
			continue
		}
		need := len(diff.Section(fd)) + 1
		if need <= budget {
			included = append(included, fd)
			budget -= need
			continue
		}
		if priority(fd, lowExts) >= importantPriority && budget/2 > minContentBudget {
			tfd := File(fd, budget/2)
			if len(diff.Section(tfd))+1 <= budget {
				included = append(included, tfd)
			} else {
				omitted++
			}
			omitted += len(kept) - i - 1
			break
		}
		omitted++
	}

	// Never return a headerless result while a file could still announce
	// itself: collapse the best remaining file to header + marker.
	if len(included) == 0 {
		for _, fd := range kept {
			if fd.Binary || len(fd.Header)+1 > budget {
				continue
			}
			if fd.Content != "" {
				fd.Content = truncatedMarker
			}
			included = append(included, fd)
			omitted--
			break
		}
	}

	out := diff.Reconstruct(included)
	if omitted > 0 {
		out += fmt.Sprintf("... [%d files omitted] ...\n", omitted)
	}
	return out
}

func ignored(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(p, filepath.Base(path)); err == nil && ok {
			return true
		}
	}
	return false
}

func priority(fd diff.FileDiff, lowExts []string) int {
	if fd.Binary {
		return priorityBinary
	}
	if groups.IsManifestFile(fd.Filename) {
		return priorityManifest
	}
	if isTestPath(fd.Filename) {
		return priorityTest
	}
	ext := strings.ToLower(filepath.Ext(fd.Filename))
	for _, low := range lowExts {
		if ext == low {
			return priorityLow
		}
	}
	if _, ok := sourceExtensions[ext]; ok {
		return prioritySource
	}
	return priorityDefault
}

// isTestPath recognizes the common test layouts: a tests/ directory segment,
// Go _test files, and .test./.spec. infixes.
func isTestPath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), "_test") {
		return true
	}
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "test" || seg == "tests" || seg == "__tests__" {
			return true
		}
	}
	return false
}
