package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"carve/cli/internal/analyze"
	"carve/cli/internal/config"
	"carve/cli/internal/diff"
	"carve/cli/internal/erruser"
	"carve/cli/internal/git"
	"carve/cli/internal/groups"
	"carve/cli/internal/llm"
	"carve/cli/internal/patch"
	"carve/cli/internal/rewrite"
	"carve/cli/internal/tokens"
	"carve/cli/internal/truncate"
	"carve/cli/internal/version"
)

// errExit is an error that carries an exit code for the CLI. Use errors.As to detect it.
type errExit int

func (e errExit) Error() string {
	return "exit " + strconv.Itoa(int(e))
}

// planOut is the JSON emitted by `carve plan` and consumed by `carve stage`.
type planOut struct {
	Type    string         `json:"type"`
	Scope   string         `json:"scope,omitempty"`
	Summary string         `json:"summary"`
	Groups  []groups.Group `json:"groups"`
	// Order lists group indices in a dependency-safe commit order.
	Order    []int    `json:"order,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// stdout is the writer for command output. Tests may replace it to capture output.
var stdout io.Writer = os.Stdout

func main() {
	os.Exit(Run())
}

// Run is the entry point for the CLI. It is exported for testing.
func Run() int {
	return runCLI(os.Args[1:])
}

func runCLI(args []string) int {
	rootCmd := &cobra.Command{
		Use:     "carve",
		Short:   "Decompose large diffs into reviewable atomic commits",
		Version: version.String(),
	}
	rootCmd.PersistentFlags().String("model", "", "Model name (overrides config and env)")
	rootCmd.PersistentFlags().String("base-url", "", "Analysis service base URL (overrides config and env)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout (overrides config and env)")
	rootCmd.PersistentFlags().Int("max-retries", -1, "Max retries on server errors (overrides config and env)")
	rootCmd.PersistentFlags().Int("token-budget", 0, "Token budget for diff payloads (overrides config and env)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print progress to stderr")
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newStageCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newRewriteCmd())
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		var exitErr errExit
		if errors.As(err, &exitErr) {
			return int(exitErr)
		}
		fmt.Fprintln(os.Stderr, err)
		if u := errors.Unwrap(err); u != nil {
			fmt.Fprintf(os.Stderr, "Details: %v\n", u)
		}
		return 1
	}
	return 0
}

// overridesFromFlags maps changed persistent flags onto config overrides.
// Unchanged flags stay nil so config files and env keep their say.
func overridesFromFlags(cmd *cobra.Command) *config.Overrides {
	o := &config.Overrides{}
	set := false
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetString("model")
		o.Model = &v
		set = true
	}
	if f := cmd.Flags().Lookup("base-url"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetString("base-url")
		o.LLMBaseURL = &v
		set = true
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetDuration("timeout")
		o.Timeout = &v
		set = true
	}
	if f := cmd.Flags().Lookup("max-retries"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt("max-retries")
		o.MaxRetries = &v
		set = true
	}
	if f := cmd.Flags().Lookup("token-budget"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt("token-budget")
		o.TokenBudget = &v
		set = true
	}
	if !set {
		return nil
	}
	return o
}

// loadConfig resolves the repo root from the working directory and loads
// configuration with flag overrides applied.
func loadConfig(cmd *cobra.Command) (string, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", nil, erruser.New("Could not determine current directory.", err)
	}
	repoRoot, err := git.RepoRoot(cwd)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(cmd.Context(), config.LoadOptions{
		RepoRoot:  repoRoot,
		Overrides: overridesFromFlags(cmd),
	})
	if err != nil {
		return "", nil, err
	}
	return repoRoot, cfg, nil
}

// readDiff returns the diff text and stat for the given diff arguments, or
// reads the diff from stdin when useStdin is set (stat is empty then).
func readDiff(cmd *cobra.Command, repoRoot string, diffArgs []string, useStdin bool) (diffText, stat string, err error) {
	if useStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", erruser.New("Could not read diff from stdin.", err)
		}
		return string(data), "", nil
	}
	diffText, err = git.Diff(cmd.Context(), repoRoot, diffArgs...)
	if err != nil {
		return "", "", erruser.New("Could not read the diff from git.", err)
	}
	stat, err = git.DiffStat(cmd.Context(), repoRoot, diffArgs...)
	if err != nil {
		return "", "", erruser.New("Could not read the diff stat from git.", err)
	}
	return diffText, stat, nil
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [diff-args...]",
		Short: "Analyze a diff and propose dependency-ordered commit groups",
		Long: `Parses the diff for the given git diff arguments (working tree by default),
analyzes it with the configured service, and prints a JSON plan: proposed
commit groups with hunk selectors, plus a dependency-safe commit order.`,
		RunE: runPlan,
	}
	cmd.Flags().Bool("stdin", false, "Read the diff from stdin instead of git")
	cmd.Flags().StringSlice("scope", nil, "Allowed commit scopes (hint for classification)")
	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	repoRoot, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	useStdin, _ := cmd.Flags().GetBool("stdin")
	scopes, _ := cmd.Flags().GetStringSlice("scope")

	diffText, stat, err := readDiff(cmd, repoRoot, args, useStdin)
	if err != nil {
		return err
	}
	files := diff.Parse(diffText)
	if len(files) == 0 {
		return errors.New("No changes to plan.")
	}

	client := llm.New(llm.Config{
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.Model,
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	})
	opts := analyze.Options{
		PerFileTokenCap: cfg.PerFileTokenCap,
		FileThreshold:   cfg.MapReduceFileThreshold,
		TokenBudget:     cfg.TokenBudget,
		IgnorePatterns:  cfg.IgnorePatterns,
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	var cls *llm.Classification
	if analyze.ShouldMapReduce(files, opts) {
		if verbose {
			fmt.Fprintf(os.Stderr, "map phase over %d files\n", len(files))
		}
		observations, err := analyze.MapPhase(cmd.Context(), client, files, opts)
		if err != nil {
			return err
		}
		cls, err = analyze.Reduce(cmd.Context(), client, observations, stat, scopes)
		if err != nil {
			return err
		}
	} else {
		if verbose {
			fmt.Fprintf(os.Stderr, "single-call analysis over %d files\n", len(files))
		}
		cls, err = analyze.Single(cmd.Context(), client, files, stat, scopes, opts)
		if err != nil {
			return err
		}
	}

	groups.ReclassifyManifestOnly(cls.Groups)
	report, err := groups.Validate(cls.Groups, diffText)
	if err != nil {
		return erruser.New("The proposed groups do not cover the diff.", err)
	}
	order, err := groups.Order(cls.Groups)
	if err != nil {
		return erruser.New("The proposed groups cannot be ordered.", err)
	}

	out := planOut{
		Type:     cls.Type,
		Scope:    cls.Scope,
		Summary:  cls.Summary,
		Groups:   cls.Groups,
		Order:    order,
		Warnings: report.Warnings,
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return erruser.New("Could not write the plan.", err)
	}
	return nil
}

func newStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage <plan.json> <group-index> [diff-args...]",
		Short: "Stage one group from a plan into the git index",
		Long: `Reads a plan produced by carve plan ("-" for stdin), resolves the chosen
group's hunk selectors against the current diff, and stages the result:
whole-file changes via git add, partial changes via a reconstructed patch
applied to the index.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runStage,
	}
	cmd.Flags().Bool("commit", false, "Commit the staged group with a generated message")
	return cmd
}

func runStage(cmd *cobra.Command, args []string) error {
	repoRoot, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	plan, err := readPlan(args[0])
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 || index >= len(plan.Groups) {
		return fmt.Errorf("Invalid group index %q; plan has %d groups.", args[1], len(plan.Groups))
	}
	group := plan.Groups[index]

	diffArgs := args[2:]
	diffText, err := git.Diff(cmd.Context(), repoRoot, diffArgs...)
	if err != nil {
		return erruser.New("Could not read the diff from git.", err)
	}

	stagePlan := patch.MakePlan(group.Changes)
	if err := git.StageFiles(cmd.Context(), repoRoot, stagePlan.WholeFiles); err != nil {
		return err
	}
	if len(stagePlan.Partial) > 0 {
		patchText, err := patch.BuildPartial(diffText, stagePlan.Partial)
		if err != nil {
			return erruser.New("Could not reconstruct the selected hunks.", err)
		}
		if err := git.ApplyCached(cmd.Context(), repoRoot, patchText); err != nil {
			return err
		}
	}

	doCommit, _ := cmd.Flags().GetBool("commit")
	if doCommit {
		msg := commitMessage(group)
		if err := git.Commit(cmd.Context(), repoRoot, msg); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "committed group %d: %s\n", index, msg)
		return nil
	}
	fmt.Fprintf(stdout, "staged group %d (%d whole files, %d partial)\n",
		index, len(stagePlan.WholeFiles), len(stagePlan.Partial))
	return nil
}

// commitMessage renders a conventional-commit style message for a group.
func commitMessage(g groups.Group) string {
	if g.Scope != "" {
		return fmt.Sprintf("%s(%s): %s", g.Type, g.Scope, g.Reason)
	}
	return fmt.Sprintf("%s: %s", g.Type, g.Reason)
}

func readPlan(path string) (*planOut, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, erruser.New("Could not read the plan file.", err)
	}
	var plan planOut
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, erruser.New("Invalid plan file.", err)
	}
	return &plan, nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [diff-args...]",
		Short: "Print the diff truncated to the configured token budget",
		RunE:  runShow,
	}
	cmd.Flags().Bool("stdin", false, "Read the diff from stdin instead of git")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	repoRoot, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	useStdin, _ := cmd.Flags().GetBool("stdin")
	diffText, _, err := readDiff(cmd, repoRoot, args, useStdin)
	if err != nil {
		return err
	}
	files := diff.Parse(diffText)
	out := truncate.Smart(files, tokens.BudgetBytes(cfg.TokenBudget), truncate.Options{
		IgnorePatterns:        cfg.IgnorePatterns,
		LowPriorityExtensions: cfg.LowPriorityExtensions,
	})
	fmt.Fprint(stdout, out)
	return nil
}

func newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <rev-range>",
		Short: "Re-analyze each commit in a range and print one classification per line",
		Long: `Walks the commits in the given range (oldest first), analyzes each
commit's diff independently across a worker pool, and prints one JSON
object per commit in range order.`,
		Args: cobra.ExactArgs(1),
		RunE: runRewrite,
	}
	cmd.Flags().Int("workers", 0, "Worker count (overrides config and env)")
	return cmd
}

// commitResult is one line of rewrite output.
type commitResult struct {
	Commit  string `json:"commit"`
	Type    string `json:"type"`
	Scope   string `json:"scope,omitempty"`
	Summary string `json:"summary"`
}

func runRewrite(cmd *cobra.Command, args []string) error {
	repoRoot, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.RewriteWorkers
	}
	shas, err := git.RevList(cmd.Context(), repoRoot, args[0])
	if err != nil {
		return err
	}
	if len(shas) == 0 {
		return errors.New("No commits in range.")
	}

	client := llm.New(llm.Config{
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.Model,
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	})
	opts := analyze.Options{
		PerFileTokenCap: cfg.PerFileTokenCap,
		FileThreshold:   cfg.MapReduceFileThreshold,
		TokenBudget:     cfg.TokenBudget,
		IgnorePatterns:  cfg.IgnorePatterns,
	}

	pool := rewrite.Pool{Workers: workers}
	start := time.Now()
	results, err := pool.Run(cmd.Context(), len(shas), func(ctx context.Context, i int) (any, error) {
		diffText, err := git.Show(ctx, repoRoot, shas[i])
		if err != nil {
			return nil, fmt.Errorf("show %s: %w", shas[i], err)
		}
		files := diff.Parse(diffText)
		if len(files) == 0 {
			return commitResult{Commit: shas[i], Type: "empty", Summary: "no textual changes"}, nil
		}
		cls, err := analyze.Single(ctx, client, files, "", nil, opts)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", shas[i], err)
		}
		return commitResult{Commit: shas[i], Type: cls.Type, Scope: cls.Scope, Summary: cls.Summary}, nil
	})
	if err != nil {
		return erruser.New("Rewrite analysis failed.", err)
	}

	enc := json.NewEncoder(stdout)
	for _, r := range results {
		if err := enc.Encode(r.Value); err != nil {
			return erruser.New("Could not write results.", err)
		}
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fmt.Fprintf(os.Stderr, "analyzed %d commits in %s\n", len(shas), time.Since(start).Round(time.Millisecond))
	}
	return nil
}
