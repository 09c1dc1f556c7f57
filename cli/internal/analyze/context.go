package analyze

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"carve/cli/internal/diff"
	"carve/cli/internal/groups"
)

// contextHeader builds the short cross-file context injected into each map
// call: a size-ranked, capped list of the sibling files with a one-line
// inferred description, so the model sees the shape of the whole changeset
// while analyzing one file.
func contextHeader(files []diff.FileDiff, self string, maxSiblings int) string {
	siblings := make([]diff.FileDiff, 0, len(files))
	for _, fd := range files {
		if fd.Filename == self {
			continue
		}
		siblings = append(siblings, fd)
	}
	if len(siblings) == 0 {
		return ""
	}
	sort.SliceStable(siblings, func(i, j int) bool {
		return len(diff.Section(siblings[i])) > len(diff.Section(siblings[j]))
	})
	if len(siblings) > maxSiblings {
		siblings = siblings[:maxSiblings]
	}

	var b strings.Builder
	b.WriteString("Other files in this changeset:\n")
	for _, fd := range siblings {
		fmt.Fprintf(&b, "- %s (%s, +%d/-%d)\n", fd.Filename, describeFile(fd), fd.Additions, fd.Deletions)
	}
	return b.String()
}

// describeFile infers a one-line description from the filename and simple
// content markers.
func describeFile(fd diff.FileDiff) string {
	if fd.Binary {
		return "binary file"
	}
	name := fd.Filename
	if isTestPath(name) {
		return "test file"
	}
	if groups.IsManifestFile(name) {
		return "dependency manifest"
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".rst", ".txt":
		return "documentation"
	case ".toml", ".yaml", ".yml", ".ini", ".json", ".env":
		return "configuration"
	case ".sql":
		return "database schema or query"
	case ".sh", ".bash":
		return "shell script"
	case ".proto":
		return "protocol definitions"
	}
	if hasTypeDefinitions(fd.Content) {
		return "type definitions"
	}
	if _, ok := sourceLanguages[strings.ToLower(filepath.Ext(name))]; ok {
		return "source file"
	}
	return "file"
}

var sourceLanguages = map[string]struct{}{
	".go": {}, ".rs": {}, ".c": {}, ".h": {}, ".cpp": {}, ".py": {},
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".java": {}, ".rb": {},
	".kt": {}, ".swift": {}, ".scala": {}, ".php": {}, ".cs": {},
}

// typeMarkers are added-line prefixes that indicate a file mostly declaring
// types.
var typeMarkers = []string{"+type ", "+struct ", "+pub struct ", "+interface ", "+class ", "+enum ", "+pub enum "}

// hasTypeDefinitions reports whether at least three added lines declare
// types; such files read better described as type definitions than as
// generic source.
func hasTypeDefinitions(content string) bool {
	count := 0
	for _, line := range strings.Split(content, "\n") {
		for _, m := range typeMarkers {
			if strings.HasPrefix(line, m) {
				count++
				break
			}
		}
	}
	return count >= 3
}

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
