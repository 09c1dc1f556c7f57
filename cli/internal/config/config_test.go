package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func ptrStr(s string) *string { return &s }
func ptrInt(n int) *int       { return &n }

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	c := DefaultConfig()
	if c.Model != _defaultModel {
		t.Errorf("Model = %q, want %q", c.Model, _defaultModel)
	}
	if c.LLMBaseURL != _defaultLLMBaseURL {
		t.Errorf("LLMBaseURL = %q, want %q", c.LLMBaseURL, _defaultLLMBaseURL)
	}
	if c.Timeout != _defaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, _defaultTimeout)
	}
	if c.MaxRetries != _defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", c.MaxRetries, _defaultMaxRetries)
	}
	if c.TokenBudget != _defaultTokenBudget {
		t.Errorf("TokenBudget = %d, want %d", c.TokenBudget, _defaultTokenBudget)
	}
	if c.IgnorePatterns != nil || c.LowPriorityExtensions != nil {
		t.Errorf("pattern lists should default to nil: %v, %v", c.IgnorePatterns, c.LowPriorityExtensions)
	}
}

func TestLoad_defaultsOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{
		RepoRoot:         dir,
		GlobalConfigPath: filepath.Join(dir, "nonexistent.toml"),
		Env:              []string{},
		Overrides:        nil,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if !reflect.DeepEqual(*cfg, want) {
		t.Errorf("got %+v, want defaults %+v", cfg, want)
	}
}

func TestLoad_globalOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.toml")
	if err := os.WriteFile(globalPath, []byte(`model = "custom-model"`), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{
		GlobalConfigPath: globalPath,
		Env:              []string{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "custom-model" {
		t.Errorf("Model = %q, want custom-model", cfg.Model)
	}
	if cfg.LLMBaseURL != _defaultLLMBaseURL {
		t.Errorf("LLMBaseURL should remain default, got %q", cfg.LLMBaseURL)
	}
}

func TestLoad_repoOverridesGlobal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.toml")
	repoRoot := filepath.Join(dir, "repo")
	repoDir := filepath.Join(repoRoot, ".carve")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatal(err)
	}
	repoPath := filepath.Join(repoDir, "config.toml")
	if err := os.WriteFile(globalPath, []byte(`model = "global-model"`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(repoPath, []byte(`model = "repo-model"`), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{
		RepoRoot:         repoRoot,
		GlobalConfigPath: globalPath,
		Env:              []string{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "repo-model" {
		t.Errorf("Model = %q, want repo-model (repo overrides global)", cfg.Model)
	}
}

func TestLoad_envOverridesRepo(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	repoRoot := filepath.Join(dir, "repo")
	repoDir := filepath.Join(repoRoot, ".carve")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatal(err)
	}
	repoPath := filepath.Join(repoDir, "config.toml")
	if err := os.WriteFile(repoPath, []byte(`model = "repo-model"`+"\n"+`token_budget = 1000`), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{
		RepoRoot:         repoRoot,
		GlobalConfigPath: filepath.Join(dir, "nonexistent.toml"),
		Env:              []string{"CARVE_MODEL=env-model", "CARVE_TOKEN_BUDGET=2000"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "env-model" {
		t.Errorf("Model = %q, want env-model (env overrides repo)", cfg.Model)
	}
	if cfg.TokenBudget != 2000 {
		t.Errorf("TokenBudget = %d, want 2000", cfg.TokenBudget)
	}
}

func TestLoad_overridesWinOverEnv(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{
		GlobalConfigPath: filepath.Join(dir, "nonexistent.toml"),
		Env:              []string{"CARVE_MODEL=env-model", "CARVE_MAX_RETRIES=9"},
		Overrides: &Overrides{
			Model:      ptrStr("flag-model"),
			MaxRetries: ptrInt(1),
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "flag-model" {
		t.Errorf("Model = %q, want flag-model (flags beat env)", cfg.Model)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
}

func TestLoad_fileFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.toml")
	content := `
model = "m"
llm_base_url = "http://example.test:9999"
timeout = "90s"
max_retries = 5
initial_backoff = "250ms"
token_budget = 8000
per_file_token_cap = 512
map_reduce_file_threshold = 8
ignore_patterns = ["*.lock", "vendor/**"]
low_priority_extensions = [".md"]
rewrite_workers = 2
`
	if err := os.WriteFile(globalPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{GlobalConfigPath: globalPath, Env: []string{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Timeout)
	}
	if cfg.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", cfg.InitialBackoff)
	}
	if cfg.MaxRetries != 5 || cfg.TokenBudget != 8000 || cfg.PerFileTokenCap != 512 ||
		cfg.MapReduceFileThreshold != 8 || cfg.RewriteWorkers != 2 {
		t.Errorf("numeric fields mismatch: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.IgnorePatterns, []string{"*.lock", "vendor/**"}) {
		t.Errorf("IgnorePatterns = %v", cfg.IgnorePatterns)
	}
	if !reflect.DeepEqual(cfg.LowPriorityExtensions, []string{".md"}) {
		t.Errorf("LowPriorityExtensions = %v", cfg.LowPriorityExtensions)
	}
}

func TestLoad_invalidTOML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.toml")
	if err := os.WriteFile(globalPath, []byte(`model = [unclosed`), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := Load(ctx, LoadOptions{GlobalConfigPath: globalPath, Env: []string{}}); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_envLists(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	cfg, err := Load(ctx, LoadOptions{
		GlobalConfigPath: filepath.Join(dir, "nonexistent.toml"),
		Env:              []string{"CARVE_IGNORE_PATTERNS=*.lock, dist/** ,", "CARVE_LOW_PRIORITY_EXTENSIONS=.md,.txt"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.IgnorePatterns, []string{"*.lock", "dist/**"}) {
		t.Errorf("IgnorePatterns = %v", cfg.IgnorePatterns)
	}
	if !reflect.DeepEqual(cfg.LowPriorityExtensions, []string{".md", ".txt"}) {
		t.Errorf("LowPriorityExtensions = %v", cfg.LowPriorityExtensions)
	}
}

func TestLoad_invalidEnvNumbers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	cases := []struct {
		name string
		env  []string
	}{
		{"retries not a number", []string{"CARVE_MAX_RETRIES=lots"}},
		{"retries negative", []string{"CARVE_MAX_RETRIES=-1"}},
		{"timeout invalid", []string{"CARVE_TIMEOUT=soon"}},
		{"workers zero", []string{"CARVE_REWRITE_WORKERS=0"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(ctx, LoadOptions{
				GlobalConfigPath: filepath.Join(dir, "nonexistent.toml"),
				Env:              tc.env,
			})
			if err == nil {
				t.Fatalf("expected error for env %v", tc.env)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	d, err := parseDuration("30")
	if err != nil || d != 30*time.Second {
		t.Errorf("parseDuration(30) = %v, %v; want 30s", d, err)
	}
	d, err = parseDuration("2m")
	if err != nil || d != 2*time.Minute {
		t.Errorf("parseDuration(2m) = %v, %v; want 2m", d, err)
	}
	if _, err := parseDuration(""); err == nil {
		t.Error("expected error for empty duration")
	}
}
