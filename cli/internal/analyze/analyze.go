// Package analyze runs the map-reduce analysis over a parsed diff: one
// observation call per file in parallel (map), then a single synthesis call
// over all observations (reduce). The parsed FileDiff slice is read-only and
// shared by reference across map tasks; each task writes once to its own
// result index, so the fan-out needs no locking.
package analyze

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"carve/cli/internal/diff"
	"carve/cli/internal/llm"
	"carve/cli/internal/tokens"
	"carve/cli/internal/truncate"
)

const (
	defaultParallelism     = 4
	defaultPerFileTokenCap = 4096
	defaultFileThreshold   = 4
	defaultMaxSiblings     = 10

	binaryNote = "binary file changed"
)

// Observer is the map-phase boundary: one call per file.
type Observer interface {
	Observe(ctx context.Context, fileDiff, contextHeader string) ([]string, error)
}

// Classifier is the reduce-phase (and single-call) boundary.
type Classifier interface {
	Classify(ctx context.Context, req llm.ClassifyRequest) (*llm.Classification, error)
}

// Options tunes the analyzer. Zero values fall back to defaults.
type Options struct {
	Parallelism     int
	PerFileTokenCap int
	// FileThreshold is the non-ignored file count at which map-reduce pays
	// off over a single unified call.
	FileThreshold int
	// TokenBudget caps the unified-call payload when set; when tighter than
	// the per-file-cap-derived budget, it wins.
	TokenBudget    int
	IgnorePatterns []string
	MaxSiblings    int
}

func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallelism
	}
	if o.PerFileTokenCap <= 0 {
		o.PerFileTokenCap = defaultPerFileTokenCap
	}
	if o.FileThreshold <= 0 {
		o.FileThreshold = defaultFileThreshold
	}
	if o.MaxSiblings <= 0 {
		o.MaxSiblings = defaultMaxSiblings
	}
	return o
}

// ShouldMapReduce reports whether the changeset is big enough for the
// map-reduce path: at least FileThreshold non-ignored files, or any single
// file over the per-file token cap. The caller makes the policy decision;
// this is the signal.
func ShouldMapReduce(files []diff.FileDiff, opts Options) bool {
	opts = opts.withDefaults()
	active := activeFiles(files, opts.IgnorePatterns)
	if len(active) >= opts.FileThreshold {
		return true
	}
	for _, fd := range active {
		if tokens.Over(diff.Section(fd), opts.PerFileTokenCap) {
			return true
		}
	}
	return false
}

// MapPhase analyzes each non-ignored file independently with bounded
// parallelism and returns one Observation per file, in file order. Binary
// files synthesize a fixed note without an external call. The phase is
// fail-fast: the first per-file failure cancels the rest and is returned.
func MapPhase(ctx context.Context, obs Observer, files []diff.FileDiff, opts Options) ([]llm.Observation, error) {
	opts = opts.withDefaults()
	active := activeFiles(files, opts.IgnorePatterns)
	if len(active) == 0 {
		return nil, nil
	}

	results := make([]llm.Observation, len(active))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for i, fd := range active {
		if fd.Binary {
			results[i] = llm.Observation{File: fd.Filename, Notes: []string{binaryNote}}
			continue
		}
		i, fd := i, fd
		g.Go(func() error {
			header := contextHeader(active, fd.Filename, opts.MaxSiblings)
			text := diff.Section(fd)
			if tokens.Over(text, opts.PerFileTokenCap) {
				text = diff.Section(truncate.File(fd, tokens.BudgetBytes(opts.PerFileTokenCap)))
			}
			notes, err := obs.Observe(ctx, text, header)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", fd.Filename, err)
			}
			results[i] = llm.Observation{
				File:      fd.Filename,
				Notes:     notes,
				Additions: fd.Additions,
				Deletions: fd.Deletions,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Reduce synthesizes one classification from the per-file observations plus
// the stat summary and scope hints.
func Reduce(ctx context.Context, cl Classifier, observations []llm.Observation, stat string, scopes []string) (*llm.Classification, error) {
	result, err := cl.Classify(ctx, llm.ClassifyRequest{
		Observations: observations,
		Stat:         stat,
		Scopes:       scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return result, nil
}

// Single is the unified one-call path used when ShouldMapReduce is false:
// the whole (budget-truncated) diff goes in one classification request.
func Single(ctx context.Context, cl Classifier, files []diff.FileDiff, stat string, scopes []string, opts Options) (*llm.Classification, error) {
	opts = opts.withDefaults()
	text := truncate.Smart(files, tokens.BudgetBytes(opts.PerFileTokenCap*opts.FileThreshold), truncate.Options{
		IgnorePatterns: opts.IgnorePatterns,
		TokenBudget:    opts.TokenBudget,
	})
	result, err := cl.Classify(ctx, llm.ClassifyRequest{
		Diff:   text,
		Stat:   stat,
		Scopes: scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return result, nil
}

func activeFiles(files []diff.FileDiff, patterns []string) []diff.FileDiff {
	if len(patterns) == 0 {
		return files
	}
	out := make([]diff.FileDiff, 0, len(files))
	for _, fd := range files {
		if matchesAny(fd.Filename, patterns) {
			continue
		}
		out = append(out, fd)
	}
	return out
}

func matchesAny(path string, patterns []string) bool {
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
