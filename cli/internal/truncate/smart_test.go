package truncate

import (
	"strings"
	"testing"

	"carve/cli/internal/diff"
)

func fileWith(name, body string) diff.FileDiff {
	return diff.FileDiff{
		Filename: name,
		Header:   "diff --git a/" + name + " b/" + name + "\n--- a/" + name + "\n+++ b/" + name,
		Content:  "@@ -1,1 +1,2 @@\n context\n" + body,
	}
}

func TestSmart_everythingFitsUnchanged(t *testing.T) {
	t.Parallel()
	files := []diff.FileDiff{fileWith("a.rs", "+a"), fileWith("b.rs", "+b")}
	got := Smart(files, 100_000, Options{})
	if got != diff.Reconstruct(files) {
		t.Error("fitting diff should be returned unchanged")
	}
}

func TestSmart_ignorePatternsExcludeEntirely(t *testing.T) {
	t.Parallel()
	files := []diff.FileDiff{
		fileWith("src/a.rs", "+a"),
		fileWith("vendor/dep/lib.rs", "+v"),
		fileWith("gen/schema.pb.go", "+g"),
	}
	got := Smart(files, 100_000, Options{IgnorePatterns: []string{"vendor/**", "*.pb.go"}})
	if strings.Contains(got, "vendor/dep/lib.rs") {
		t.Errorf("vendor file not excluded:\n%s", got)
	}
	if strings.Contains(got, "schema.pb.go") {
		t.Errorf("generated file not excluded:\n%s", got)
	}
	if !strings.Contains(got, "src/a.rs") {
		t.Errorf("kept file missing:\n%s", got)
	}
}

func TestSmart_headersAlwaysIncludedWhenTheyFit(t *testing.T) {
	t.Parallel()
	var files []diff.FileDiff
	names := []string{"one.rs", "two.rs", "three.rs", "four.rs"}
	for _, n := range names {
		files = append(files, fileWith(n, strings.Repeat("+x\n", 200)))
	}
	full := len(diff.Reconstruct(files))
	got := Smart(files, full/4, Options{})
	for _, n := range names {
		if !strings.Contains(got, "diff --git a/"+n) {
			t.Errorf("header for %s missing from truncated output", n)
		}
	}
	if len(got) >= full {
		t.Error("output was not truncated")
	}
}

func TestSmart_headerSurvivesTinyBudget(t *testing.T) {
	t.Parallel()
	// Headers alone exceed the budget and no file fits whole; the output
	// must still name at least one file.
	files := []diff.FileDiff{
		fileWith("notes.md", strings.Repeat("+m\n", 300)),
		fileWith("also.md", strings.Repeat("+n\n", 300)),
	}
	budget := len(files[0].Header) + len(truncatedMarker) + 10
	got := Smart(files, budget, Options{})
	if !strings.Contains(got, "diff --git a/notes.md") {
		t.Errorf("no file header in tiny-budget output:\n%s", got)
	}
	if !strings.Contains(got, "files omitted") {
		t.Errorf("omitted-files marker missing:\n%s", got)
	}
}

func TestSmart_sourcePreferredOverLowPriority(t *testing.T) {
	t.Parallel()
	rs := fileWith("lib.rs", "+x")
	md := fileWith("docs.md", "+x")

	// Budget below the combined header size forces priority packing.
	headerTotal := len(rs.Header) + len(md.Header) + 2
	budget := headerTotal - 10
	if budget <= len(diff.Section(rs))+1 {
		t.Fatalf("test setup: budget %d cannot hold one file", budget)
	}
	got := Smart([]diff.FileDiff{md, rs}, budget, Options{})
	if !strings.Contains(got, "lib.rs") {
		t.Errorf(".rs file should be preferred:\n%s", got)
	}
	if strings.Contains(got, "diff --git a/docs.md") {
		t.Errorf(".md file should be dropped:\n%s", got)
	}
	if !strings.Contains(got, "1 files omitted") {
		t.Errorf("omitted-files marker missing:\n%s", got)
	}
}

func TestSmart_tokenBudgetWinsWhenTighter(t *testing.T) {
	t.Parallel()
	var files []diff.FileDiff
	wide := "+" + strings.Repeat("x", 60) + "\n"
	for _, n := range []string{"a.rs", "b.rs", "c.rs"} {
		// Few, wide lines: stays under the head/tail line threshold so the
		// per-file budget is enforced exactly.
		files = append(files, fileWith(n, strings.Repeat(wide, 20)))
	}
	// 100 tokens -> 400 bytes, far below the generous char budget.
	got := Smart(files, 1_000_000, Options{TokenBudget: 100})
	if len(got) > 400+3*(len(truncatedMarker)+2) {
		t.Errorf("output length %d exceeds token-derived budget plus marker overhead", len(got))
	}
}

func TestSmart_binariesSkippedInPacking(t *testing.T) {
	t.Parallel()
	bin := diff.FileDiff{
		Filename: "logo.png",
		Header:   "diff --git a/logo.png b/logo.png\nBinary files a/logo.png and b/logo.png differ",
		Binary:   true,
	}
	src := fileWith("main.go", "+ok")
	budget := len(diff.Section(src)) + 2
	got := Smart([]diff.FileDiff{bin, src}, budget, Options{})
	if strings.Contains(got, "logo.png") {
		t.Errorf("binary included under tight budget:\n%s", got)
	}
	if !strings.Contains(got, "main.go") {
		t.Errorf("source file missing:\n%s", got)
	}
}

func TestPriority(t *testing.T) {
	t.Parallel()
	low := DefaultLowPriorityExtensions
	tests := []struct {
		name string
		fd   diff.FileDiff
		want int
	}{
		{"binary", diff.FileDiff{Filename: "a.png", Binary: true}, priorityBinary},
		{"manifest", diff.FileDiff{Filename: "Cargo.lock"}, priorityManifest},
		{"go test", diff.FileDiff{Filename: "pkg/foo_test.go"}, priorityTest},
		{"tests dir", diff.FileDiff{Filename: "tests/api.rs"}, priorityTest},
		{"markdown", diff.FileDiff{Filename: "README.md"}, priorityLow},
		{"rust source", diff.FileDiff{Filename: "src/lib.rs"}, prioritySource},
		{"shell", diff.FileDiff{Filename: "deploy.sh"}, prioritySource},
		{"sql", diff.FileDiff{Filename: "migrations/001.sql"}, prioritySource},
		{"unknown", diff.FileDiff{Filename: "Dockerfile"}, priorityDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := priority(tt.fd, low); got != tt.want {
				t.Errorf("priority(%s) = %d, want %d", tt.fd.Filename, got, tt.want)
			}
		})
	}
}
