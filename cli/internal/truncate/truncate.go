// Package truncate shrinks a parsed diff to fit a size budget while keeping
// its structure readable: per-file truncation keeps the head and tail of a
// long change, and whole-diff truncation spends the budget on the highest
// priority files first so a size-constrained consumer still sees what
// matters.
package truncate

import (
	"fmt"
	"strings"

	"carve/cli/internal/diff"
)

const (
	// headKeep and tailKeep show both what changed early and what changed
	// late in a long file.
	headKeep      = 15
	tailKeep      = 10
	lineThreshold = 30

	// minContentBudget is the smallest content budget worth keeping any
	// real content for; below it the content collapses to a marker.
	minContentBudget = 40

	truncatedMarker = "... [diff truncated] ..."
)

// File returns fd shrunk to at most roughly maxSize bytes of reconstructed
// section text. Already-fitting files are returned unchanged. The header is
// always preserved; only content shrinks.
func File(fd diff.FileDiff, maxSize int) diff.FileDiff {
	if fd.Content == "" || len(diff.Section(fd)) <= maxSize {
		return fd
	}

	contentBudget := maxSize - len(fd.Header) - 1
	if contentBudget-len(truncatedMarker) < minContentBudget {
		fd.Content = truncatedMarker
		return fd
	}

	lines := strings.Split(fd.Content, "\n")
	if len(lines) > lineThreshold {
		omitted := len(lines) - headKeep - tailKeep
		kept := make([]string, 0, headKeep+tailKeep+1)
		kept = append(kept, lines[:headKeep]...)
		kept = append(kept, fmt.Sprintf("... [%d lines truncated] ...", omitted))
		kept = append(kept, lines[len(lines)-tailKeep:]...)
		joined := strings.Join(kept, "\n")
		// The line-based cut can overshoot the byte budget when the kept
		// lines are long; allow only marker-sized slack before falling
		// back to the byte-exact cut below.
		if len(joined) <= contentBudget+len(truncatedMarker) {
			fd.Content = joined
			return fd
		}
	}

	cut := contentBudget - len(truncatedMarker) - 1
	if cut > len(fd.Content) {
		cut = len(fd.Content)
	}
	fd.Content = fd.Content[:cut] + "\n" + truncatedMarker
	return fd
}
