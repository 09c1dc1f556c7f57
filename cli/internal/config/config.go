// Package config provides Carve configuration with a defined load order:
// CLI flags > environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: .carve/config.toml (relative to repo root)
//   - Global: XDG config dir, e.g. ~/.config/carve/config.toml (see os.UserConfigDir)
//
// Environment variables (override config files when set):
//   - CARVE_MODEL, CARVE_LLM_BASE_URL,
//   - CARVE_TIMEOUT (Go duration string or integer seconds),
//   - CARVE_MAX_RETRIES, CARVE_INITIAL_BACKOFF,
//   - CARVE_TOKEN_BUDGET, CARVE_PER_FILE_TOKEN_CAP, CARVE_MAP_REDUCE_FILE_THRESHOLD,
//   - CARVE_IGNORE_PATTERNS, CARVE_LOW_PRIORITY_EXTENSIONS (comma-separated lists),
//   - CARVE_REWRITE_WORKERS.
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"carve/cli/internal/erruser"
)

// Config holds all Carve configuration. Empty slices for IgnorePatterns and
// LowPriorityExtensions mean "use built-in defaults".
type Config struct {
	Model          string        `toml:"model"`
	LLMBaseURL     string        `toml:"llm_base_url"`
	Timeout        time.Duration `toml:"timeout"`
	MaxRetries     int           `toml:"max_retries"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	// TokenBudget caps the size of a diff sent in a single analysis request.
	TokenBudget int `toml:"token_budget"`
	// PerFileTokenCap caps each per-file diff during the map phase.
	PerFileTokenCap int `toml:"per_file_token_cap"`
	// MapReduceFileThreshold is the file count at which analysis switches to map-reduce.
	MapReduceFileThreshold int `toml:"map_reduce_file_threshold"`
	// IgnorePatterns are glob patterns for files excluded from analysis (e.g. lockfiles).
	IgnorePatterns []string `toml:"ignore_patterns"`
	// LowPriorityExtensions are extensions truncated first under budget pressure.
	LowPriorityExtensions []string `toml:"low_priority_extensions"`
	// RewriteWorkers is the worker count for per-commit rewrite analysis.
	RewriteWorkers int `toml:"rewrite_workers"`
}

// Overrides represents optional CLI flag overrides. Non-nil pointer means
// "override with this value". Cobra flags populate these; tests pass explicitly.
type Overrides struct {
	Model                  *string
	LLMBaseURL             *string
	Timeout                *time.Duration
	MaxRetries             *int
	InitialBackoff         *time.Duration
	TokenBudget            *int
	PerFileTokenCap        *int
	MapReduceFileThreshold *int
	IgnorePatterns         *[]string
	LowPriorityExtensions  *[]string
	RewriteWorkers         *int
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// RepoRoot is the repository root; if set, repo config is RepoRoot/.carve/config.toml.
	RepoRoot string
	// GlobalConfigPath is the global config file path; if empty, XDG path is used.
	GlobalConfigPath string
	// Env is the environment key=value slice; if nil, os.Environ() is used.
	Env []string
	// Overrides are applied last (highest precedence).
	Overrides *Overrides
}

const (
	_defaultModel                  = "qwen3-coder:30b"
	_defaultLLMBaseURL             = "http://localhost:11434"
	_defaultTimeout                = 5 * time.Minute
	_defaultMaxRetries             = 3
	_defaultInitialBackoff         = time.Second
	_defaultTokenBudget            = 50000
	_defaultPerFileTokenCap        = 4096
	_defaultMapReduceFileThreshold = 4
	_defaultRewriteWorkers         = 4
)

// errIntOverflow is returned when an int64 value does not fit in int (e.g. on 32-bit or huge TOML/env values).
var errIntOverflow = errors.New("value out of range for int")

// int64ToInt converts n to int. It returns an error if n is outside the range of int.
func int64ToInt(n int64) (int, error) {
	if n < int64(math.MinInt) || n > int64(math.MaxInt) {
		return 0, errIntOverflow
	}
	return int(n), nil
}

// DefaultConfig returns the default configuration (no I/O).
func DefaultConfig() Config {
	return Config{
		Model:                  _defaultModel,
		LLMBaseURL:             _defaultLLMBaseURL,
		Timeout:                _defaultTimeout,
		MaxRetries:             _defaultMaxRetries,
		InitialBackoff:         _defaultInitialBackoff,
		TokenBudget:            _defaultTokenBudget,
		PerFileTokenCap:        _defaultPerFileTokenCap,
		MapReduceFileThreshold: _defaultMapReduceFileThreshold,
		RewriteWorkers:         _defaultRewriteWorkers,
	}
}

// Load loads configuration with precedence: defaults < global file < repo file < env < overrides.
// Missing config files are ignored. Invalid TOML or invalid env values return an error.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := DefaultConfig()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, erruser.New("Could not determine config directory.", err)
		}
		globalPath = filepath.Join(dir, "carve", "config.toml")
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return nil, err
	}

	if opts.RepoRoot != "" {
		repoPath := filepath.Join(opts.RepoRoot, ".carve", "config.toml")
		if err := mergeFile(&cfg, repoPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return nil, err
	}

	applyOverrides(&cfg, opts.Overrides)
	return &cfg, nil
}

// mergeFile reads path and merges into cfg. Only overwrites fields that are
// present and valid in the file (so explicit empty/zero in TOML keeps previous value).
// Missing file is skipped (no error).
func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erruser.New("Invalid configuration file.", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return erruser.New("Could not read configuration file.", err)
	}
	var file struct {
		Model                  *string   `toml:"model"`
		LLMBaseURL             *string   `toml:"llm_base_url"`
		Timeout                *string   `toml:"timeout"`
		MaxRetries             *int64    `toml:"max_retries"`
		InitialBackoff         *string   `toml:"initial_backoff"`
		TokenBudget            *int64    `toml:"token_budget"`
		PerFileTokenCap        *int64    `toml:"per_file_token_cap"`
		MapReduceFileThreshold *int64    `toml:"map_reduce_file_threshold"`
		IgnorePatterns         *[]string `toml:"ignore_patterns"`
		LowPriorityExtensions  *[]string `toml:"low_priority_extensions"`
		RewriteWorkers         *int64    `toml:"rewrite_workers"`
	}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return erruser.New("Invalid configuration in .carve/config.toml.", err)
	}
	if file.Model != nil && *file.Model != "" {
		cfg.Model = *file.Model
	}
	if file.LLMBaseURL != nil && *file.LLMBaseURL != "" {
		cfg.LLMBaseURL = *file.LLMBaseURL
	}
	if file.Timeout != nil && *file.Timeout != "" {
		d, err := parseDuration(*file.Timeout)
		if err != nil {
			return erruser.New("Configuration timeout is invalid.", err)
		}
		cfg.Timeout = d
	}
	if file.MaxRetries != nil && *file.MaxRetries >= 0 {
		v, err := int64ToInt(*file.MaxRetries)
		if err != nil {
			return erruser.New("Configuration max_retries value out of range.", err)
		}
		cfg.MaxRetries = v
	}
	if file.InitialBackoff != nil && *file.InitialBackoff != "" {
		d, err := parseDuration(*file.InitialBackoff)
		if err != nil {
			return erruser.New("Configuration initial_backoff is invalid.", err)
		}
		cfg.InitialBackoff = d
	}
	if file.TokenBudget != nil && *file.TokenBudget > 0 {
		v, err := int64ToInt(*file.TokenBudget)
		if err != nil {
			return erruser.New("Configuration token_budget value out of range.", err)
		}
		cfg.TokenBudget = v
	}
	if file.PerFileTokenCap != nil && *file.PerFileTokenCap > 0 {
		v, err := int64ToInt(*file.PerFileTokenCap)
		if err != nil {
			return erruser.New("Configuration per_file_token_cap value out of range.", err)
		}
		cfg.PerFileTokenCap = v
	}
	if file.MapReduceFileThreshold != nil && *file.MapReduceFileThreshold > 0 {
		v, err := int64ToInt(*file.MapReduceFileThreshold)
		if err != nil {
			return erruser.New("Configuration map_reduce_file_threshold value out of range.", err)
		}
		cfg.MapReduceFileThreshold = v
	}
	if file.IgnorePatterns != nil {
		cfg.IgnorePatterns = *file.IgnorePatterns
	}
	if file.LowPriorityExtensions != nil {
		cfg.LowPriorityExtensions = *file.LowPriorityExtensions
	}
	if file.RewriteWorkers != nil && *file.RewriteWorkers > 0 {
		v, err := int64ToInt(*file.RewriteWorkers)
		if err != nil {
			return erruser.New("Configuration rewrite_workers value out of range.", err)
		}
		cfg.RewriteWorkers = v
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Try Go duration first (e.g. "5m", "30s")
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	// Try integer seconds
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}

// env key names for config
const (
	envModel                  = "CARVE_MODEL"
	envLLMBaseURL             = "CARVE_LLM_BASE_URL"
	envTimeout                = "CARVE_TIMEOUT"
	envMaxRetries             = "CARVE_MAX_RETRIES"
	envInitialBackoff         = "CARVE_INITIAL_BACKOFF"
	envTokenBudget            = "CARVE_TOKEN_BUDGET"
	envPerFileTokenCap        = "CARVE_PER_FILE_TOKEN_CAP"
	envMapReduceFileThreshold = "CARVE_MAP_REDUCE_FILE_THRESHOLD"
	envIgnorePatterns         = "CARVE_IGNORE_PATTERNS"
	envLowPriorityExtensions  = "CARVE_LOW_PRIORITY_EXTENSIONS"
	envRewriteWorkers         = "CARVE_REWRITE_WORKERS"
)

func applyEnv(cfg *Config, env []string) error {
	vals := make(map[string]string)
	for _, e := range env {
		idx := strings.Index(e, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(e[:idx])
		val := strings.TrimSpace(e[idx+1:])
		vals[key] = val
	}
	if v, ok := vals[envModel]; ok && v != "" {
		cfg.Model = v
	}
	if v, ok := vals[envLLMBaseURL]; ok && v != "" {
		cfg.LLMBaseURL = v
	}
	if v, ok := vals[envTimeout]; ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New("CARVE_TIMEOUT must be a valid duration.", err)
		}
		cfg.Timeout = d
	}
	if v, ok := vals[envMaxRetries]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return erruser.New("CARVE_MAX_RETRIES must be a valid number.", err)
		}
		if n < 0 {
			return erruser.New("CARVE_MAX_RETRIES must be non-negative.", nil)
		}
		cfg.MaxRetries, err = int64ToInt(n)
		if err != nil {
			return erruser.New("CARVE_MAX_RETRIES value out of range.", err)
		}
	}
	if v, ok := vals[envInitialBackoff]; ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New("CARVE_INITIAL_BACKOFF must be a valid duration.", err)
		}
		cfg.InitialBackoff = d
	}
	if v, ok := vals[envTokenBudget]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return erruser.New("CARVE_TOKEN_BUDGET must be a valid number.", err)
		}
		if n > 0 {
			cfg.TokenBudget, err = int64ToInt(n)
			if err != nil {
				return erruser.New("CARVE_TOKEN_BUDGET value out of range.", err)
			}
		}
	}
	if v, ok := vals[envPerFileTokenCap]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return erruser.New("CARVE_PER_FILE_TOKEN_CAP must be a valid number.", err)
		}
		if n > 0 {
			cfg.PerFileTokenCap, err = int64ToInt(n)
			if err != nil {
				return erruser.New("CARVE_PER_FILE_TOKEN_CAP value out of range.", err)
			}
		}
	}
	if v, ok := vals[envMapReduceFileThreshold]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return erruser.New("CARVE_MAP_REDUCE_FILE_THRESHOLD must be a valid number.", err)
		}
		if n > 0 {
			cfg.MapReduceFileThreshold, err = int64ToInt(n)
			if err != nil {
				return erruser.New("CARVE_MAP_REDUCE_FILE_THRESHOLD value out of range.", err)
			}
		}
	}
	if v, ok := vals[envIgnorePatterns]; ok {
		cfg.IgnorePatterns = splitList(v)
	}
	if v, ok := vals[envLowPriorityExtensions]; ok {
		cfg.LowPriorityExtensions = splitList(v)
	}
	if v, ok := vals[envRewriteWorkers]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return erruser.New("CARVE_REWRITE_WORKERS must be a valid number.", err)
		}
		if n <= 0 {
			return erruser.New("CARVE_REWRITE_WORKERS must be positive.", nil)
		}
		cfg.RewriteWorkers, err = int64ToInt(n)
		if err != nil {
			return erruser.New("CARVE_REWRITE_WORKERS value out of range.", err)
		}
	}
	return nil
}

// splitList parses a comma-separated env value into a slice, trimming
// whitespace and dropping empty entries. An all-empty value yields nil,
// which falls back to built-in defaults.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.Model != nil {
		cfg.Model = *o.Model
	}
	if o.LLMBaseURL != nil {
		cfg.LLMBaseURL = *o.LLMBaseURL
	}
	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}
	if o.MaxRetries != nil {
		v := *o.MaxRetries
		if v < 0 {
			v = 0
		}
		cfg.MaxRetries = v
	}
	if o.InitialBackoff != nil {
		cfg.InitialBackoff = *o.InitialBackoff
	}
	if o.TokenBudget != nil && *o.TokenBudget > 0 {
		cfg.TokenBudget = *o.TokenBudget
	}
	if o.PerFileTokenCap != nil && *o.PerFileTokenCap > 0 {
		cfg.PerFileTokenCap = *o.PerFileTokenCap
	}
	if o.MapReduceFileThreshold != nil && *o.MapReduceFileThreshold > 0 {
		cfg.MapReduceFileThreshold = *o.MapReduceFileThreshold
	}
	if o.IgnorePatterns != nil {
		cfg.IgnorePatterns = *o.IgnorePatterns
	}
	if o.LowPriorityExtensions != nil {
		cfg.LowPriorityExtensions = *o.LowPriorityExtensions
	}
	if o.RewriteWorkers != nil && *o.RewriteWorkers > 0 {
		cfg.RewriteWorkers = *o.RewriteWorkers
	}
}
