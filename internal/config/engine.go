package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the ambient, non-Registry configuration of a loom run:
// which LLM provider backs the LLM Invoker/decomposer strategy, how many
// stages execute concurrently, and where checkpoints live. Grounded on
// core/config.Manager's Config/DefaultConfig shape, trimmed to what a
// single-shot engine run needs — the teacher's hot-reload machinery
// (atomic *unsafe.Pointer* swap, OnChange watcher list) is dropped since
// nothing here swaps a live Registry mid-run (spec.md §3: Registry
// entities are "created ... at startup and never mutated").
type EngineConfig struct {
	LLM        LLMConfig        `yaml:"llm"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Engine     EngineSettings   `yaml:"engine"`
}

// LLMConfig selects and configures the concrete llmclient.Client the LLM
// Invoker and the LLM decomposition strategy use.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "anthropic" | "openai" | "" (no LLM invoker configured)
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CheckpointConfig configures the default internal/checkpoint.FileStore.
type CheckpointConfig struct {
	Dir            string `yaml:"dir"`
	MaxCheckpoints int    `yaml:"max_checkpoints"`
}

// EngineSettings configures the Orchestrator/Workflow Executor.
type EngineSettings struct {
	Concurrency int `yaml:"concurrency"`
}

// DefaultEngineConfig mirrors core/config.DefaultConfig's pattern of a
// fully-populated zero-risk starting point before any file or
// environment override is applied.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		LLM: LLMConfig{
			Provider:  "",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Checkpoint: CheckpointConfig{
			Dir:            ".loom/checkpoints",
			MaxCheckpoints: 20,
		},
		Engine: EngineSettings{
			Concurrency: 8,
		},
	}
}

// LoadEngineConfig reads path (if it exists; absence is not an error) on
// top of DefaultEngineConfig, then applies LOOM_*-prefixed environment
// overrides, matching applyEnvironment's SYLK_*-prefixed convention in
// core/config/manager.go.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// no file — defaults only
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvironment(cfg)
	return cfg, nil
}

func applyEnvironment(cfg *EngineConfig) {
	if v := os.Getenv("LOOM_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LOOM_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LOOM_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LOOM_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("LOOM_CHECKPOINT_DIR"); v != "" {
		cfg.Checkpoint.Dir = v
	}
	if v := os.Getenv("LOOM_ENGINE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Concurrency = n
		}
	}
}

// ResolveCheckpointDir joins the configured checkpoint directory onto
// root if it is relative, matching storage.ResolveProjectDirs' pattern
// of anchoring relative config paths to the project root rather than the
// process's current working directory.
func ResolveCheckpointDir(root string, cfg CheckpointConfig) string {
	if filepath.IsAbs(cfg.Dir) {
		return cfg.Dir
	}
	return filepath.Join(root, cfg.Dir)
}
