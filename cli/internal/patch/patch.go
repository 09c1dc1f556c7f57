// Package patch rebuilds applicable patch text from resolved hunk headers
// and plans how a set of file changes gets staged: whole-file changes go
// through plain staging in one batch, everything else through reconstructed
// patch text fed to an apply-to-index operation.
package patch

import (
	"fmt"
	"strings"

	"carve/cli/internal/diff"
	"carve/cli/internal/groups"
	"carve/cli/internal/hunk"
)

// AllHunks is the literal header-list value meaning "every hunk of the file".
const AllHunks = "ALL"

// Build emits one file's patch fragment: the file header verbatim, then each
// hunk (in original file order) whose normalized header matches one of the
// requested headers. headers equal to [AllHunks] keeps every hunk. A result
// with zero body hunks is an error; an empty selection is not a patch.
//
// The fragment ends with a newline so fragments for multiple files
// concatenate into a patch git apply accepts.
func Build(diffText, path string, headers []string) (string, error) {
	fd, err := fileDiff(diffText, path)
	if err != nil {
		return "", err
	}

	hunks := hunk.ParseHunks(fd.Content)
	keepAll := len(headers) == 1 && headers[0] == AllHunks
	want := make(map[string]struct{}, len(headers))
	if !keepAll {
		for _, h := range headers {
			want[hunk.NormalizeHeader(h)] = struct{}{}
		}
	}

	var body []string
	for _, h := range hunks {
		if keepAll {
			body = append(body, h.Text())
			continue
		}
		if _, ok := want[hunk.NormalizeHeader(h.Header)]; ok {
			body = append(body, h.Text())
		}
	}
	if len(body) == 0 {
		return "", fmt.Errorf("no hunks selected for %s; refusing to build an empty patch", path)
	}

	return fd.Header + "\n" + strings.Join(body, "\n") + "\n", nil
}

// Plan partitions a group's file changes by staging strategy. WholeFiles are
// paths staged with a single batched "stage files" call (de-duplicated,
// first-seen order); Partial changes go through Build and apply-to-index.
type Plan struct {
	WholeFiles []string
	Partial    []groups.FileChange
}

// MakePlan splits changes into whole-file and partial staging. A change
// whose selector sequence is exactly [All] is whole-file; anything else is
// partial.
func MakePlan(changes []groups.FileChange) Plan {
	var plan Plan
	seen := make(map[string]struct{})
	for _, fc := range changes {
		if fc.IsWholeFile() {
			if _, dup := seen[fc.Path]; dup {
				continue
			}
			seen[fc.Path] = struct{}{}
			plan.WholeFiles = append(plan.WholeFiles, fc.Path)
			continue
		}
		plan.Partial = append(plan.Partial, fc)
	}
	return plan
}

// BuildPartial resolves each partial change's selectors against diffText and
// concatenates the per-file fragments into one multi-file patch. Any
// resolution or reconstruction failure aborts; nothing is partially built.
func BuildPartial(diffText string, changes []groups.FileChange) (string, error) {
	var b strings.Builder
	for _, fc := range changes {
		headers, err := hunk.Resolve(diffText, fc.Path, fc.Hunks)
		if err != nil {
			return "", err
		}
		fragment, err := Build(diffText, fc.Path, headers)
		if err != nil {
			return "", err
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}

func fileDiff(diffText, path string) (diff.FileDiff, error) {
	for _, fd := range diff.Parse(diffText) {
		if fd.Filename == path {
			return fd, nil
		}
	}
	return diff.FileDiff{}, fmt.Errorf("file %s not found in diff", path)
}
