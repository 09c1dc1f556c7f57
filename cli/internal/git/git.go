// Package git is the version-control boundary: it runs git subprocesses and
// shuttles plain text in and out. The rest of the tool only ever sees diff
// text, stat text, and file paths; no parsing happens here.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"carve/cli/internal/erruser"
)

// RepoRoot returns the absolute path of the git repository root containing
// dir, via "git rev-parse --show-toplevel".
func RepoRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	cmd.Env = minimalEnv()
	out, err := cmd.Output()
	if err != nil {
		return "", erruser.New("This directory is not inside a Git repository.", err)
	}
	return filepath.Abs(strings.TrimSpace(string(out)))
}

// Diff returns the unified diff text for the given refs/arguments, e.g.
// Diff(ctx, root, "--cached") or Diff(ctx, root, "main..HEAD").
func Diff(ctx context.Context, repoRoot string, args ...string) (string, error) {
	full := append([]string{"diff", "--no-color", "--no-ext-diff"}, args...)
	return runGit(ctx, repoRoot, full...)
}

// DiffStat returns the stat summary for the same arguments. The text is
// opaque to this tool and passed through to the analysis service unmodified.
func DiffStat(ctx context.Context, repoRoot string, args ...string) (string, error) {
	full := append([]string{"diff", "--no-color", "--stat"}, args...)
	return runGit(ctx, repoRoot, full...)
}

// StageFiles stages whole files in one batched "git add" call.
func StageFiles(ctx context.Context, repoRoot string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := runGit(ctx, repoRoot, args...); err != nil {
		return erruser.Newf(err, "Could not stage %d files.", len(paths))
	}
	return nil
}

// ApplyCached applies reconstructed patch text to the index via
// "git apply --cached" with the patch on stdin. The patch text is fed
// verbatim; any divergence from what git accepts is the builder's defect.
func ApplyCached(ctx context.Context, repoRoot, patch string) error {
	cmd := exec.CommandContext(ctx, "git", "apply", "--cached", "--whitespace=nowarn", "-")
	cmd.Dir = repoRoot
	cmd.Env = minimalEnv()
	cmd.Stdin = strings.NewReader(patch)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return erruser.New("Could not apply the selected hunks to the index.",
			fmt.Errorf("git apply --cached: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	return nil
}

// ResetIndex unstages everything, restoring the index to HEAD. Used between
// group commits while splitting.
func ResetIndex(ctx context.Context, repoRoot string) error {
	if _, err := runGit(ctx, repoRoot, "reset", "--quiet"); err != nil {
		return erruser.New("Could not reset the index.", err)
	}
	return nil
}

// Commit commits the current index with the given message.
func Commit(ctx context.Context, repoRoot, message string) error {
	if _, err := runGit(ctx, repoRoot, "commit", "--quiet", "-m", message); err != nil {
		return erruser.New("Could not create the commit.", err)
	}
	return nil
}

// RevList returns commit SHAs for a range, oldest first.
func RevList(ctx context.Context, repoRoot, revRange string) ([]string, error) {
	out, err := runGit(ctx, repoRoot, "rev-list", "--reverse", revRange)
	if err != nil {
		return nil, erruser.Newf(err, "Could not list commits for %s.", revRange)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Show returns the diff text of one commit.
func Show(ctx context.Context, repoRoot, sha string) (string, error) {
	return runGit(ctx, repoRoot, "show", "--no-color", "--no-ext-diff", "--format=", sha)
}

func runGit(ctx context.Context, repoRoot string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	cmd.Env = minimalEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// minimalEnv keeps git non-interactive and independent of user config that
// could alter diff output.
func minimalEnv() []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"GIT_TERMINAL_PROMPT=0",
	}
}
