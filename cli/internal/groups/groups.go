// Package groups models candidate atomic commits over a changeset: each
// group claims file paths with hunk selectors, proposes a commit type, and
// may depend on other groups in the same batch. The package orders a batch
// topologically and validates that the batch covers every changed file.
package groups

import (
	"path/filepath"
	"strings"

	"carve/cli/internal/hunk"
)

// MaintenanceType is the commit type forced onto groups whose changes touch
// only dependency-manifest files.
const MaintenanceType = "chore"

// FileChange is one file's contribution to a group: the path plus the
// ordered selectors picking which of its hunks belong here.
type FileChange struct {
	Path  string          `json:"path"`
	Hunks []hunk.Selector `json:"hunks"`
}

// IsWholeFile reports whether the change stages the entire file: a selector
// sequence of exactly one All. Whole-file changes skip patch reconstruction
// and go through plain staging.
func (fc FileChange) IsWholeFile() bool {
	return len(fc.Hunks) == 1 && fc.Hunks[0].Kind == hunk.SelectAll
}

// Group is a candidate atomic commit.
type Group struct {
	Changes []FileChange `json:"changes"`
	Type    string       `json:"type"`
	Scope   string       `json:"scope,omitempty"`
	Reason  string       `json:"reason"`
	// Dependencies are indices of groups in the same batch that must be
	// applied first. Must be < batch size and never the group's own index.
	Dependencies []int `json:"dependencies,omitempty"`
}

// manifestNames are dependency-manifest files across common ecosystems.
// A group touching only these is reclassified to MaintenanceType.
var manifestNames = map[string]struct{}{
	"cargo.toml":        {},
	"cargo.lock":        {},
	"go.mod":            {},
	"go.sum":            {},
	"package.json":      {},
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"gemfile":           {},
	"gemfile.lock":      {},
	"requirements.txt":  {},
	"pipfile":           {},
	"pipfile.lock":      {},
	"poetry.lock":       {},
	"composer.json":     {},
	"composer.lock":     {},
	"pom.xml":           {},
	"build.gradle":      {},
	"build.gradle.kts":  {},
}

// IsManifestFile reports whether path names a recognized dependency-manifest
// file (package or lock file).
func IsManifestFile(path string) bool {
	_, ok := manifestNames[strings.ToLower(filepath.Base(path))]
	return ok
}

// IsManifestOnly reports whether every change in the group touches a
// dependency-manifest file. Empty groups return false.
func (g Group) IsManifestOnly() bool {
	if len(g.Changes) == 0 {
		return false
	}
	for _, fc := range g.Changes {
		if !IsManifestFile(fc.Path) {
			return false
		}
	}
	return true
}

// ReclassifyManifestOnly forces MaintenanceType onto every manifest-only
// group, regardless of its originally proposed type.
func ReclassifyManifestOnly(gs []Group) {
	for i := range gs {
		if gs[i].IsManifestOnly() {
			gs[i].Type = MaintenanceType
		}
	}
}
