package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration at path, expands environment
// variables, merges built-in defaults underneath, and validates the
// result. A missing file is not an error: the defaults still apply, so a
// deployment can run on environment variables alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
		slog.Info("Configuration loaded", "path", path)
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("Configuration file not found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, defaults()); err != nil {
		return nil, fmt.Errorf("merging defaults: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

// applyEnvOverrides lets the common credentials be supplied directly via
// environment variables without a config file entry.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENSEARCH_USERNAME"); v != "" {
		cfg.VectorStore.Username = v
	}
	if v := os.Getenv("OPENSEARCH_PASSWORD"); v != "" {
		cfg.VectorStore.Password = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.GraphStore.URI = v
	}
	if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		cfg.GraphStore.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		cfg.GraphStore.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.Provider == "anthropic" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
}

func validate(cfg *Config) error {
	if len(cfg.VectorStore.Addresses) == 0 {
		return newValidationError("vector_store", "addresses", errors.New("at least one address required"))
	}
	if cfg.VectorStore.Index == "" {
		return newValidationError("vector_store", "index", errors.New("required"))
	}
	if cfg.Embedding.Dimension < 1 {
		return newValidationError("embedding", "dimension", errors.New("must be at least 1"))
	}
	if cfg.Embedding.Model == "" {
		return newValidationError("embedding", "model", errors.New("required"))
	}
	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		return newValidationError("llm", "provider",
			fmt.Errorf("unsupported provider %q (must be openai or anthropic)", cfg.LLM.Provider))
	}
	if cfg.LLM.Model == "" {
		return newValidationError("llm", "model", errors.New("required"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 0.2 {
		return newValidationError("llm", "temperature", errors.New("must be in [0, 0.2]"))
	}
	if cfg.LLM.MaxRetries < 0 {
		return newValidationError("llm", "max_retries", errors.New("must not be negative"))
	}
	if cfg.VectorStore.MaxRetries < 0 {
		return newValidationError("vector_store", "max_retries", errors.New("must not be negative"))
	}
	if cfg.Embedding.MaxRetries < 0 {
		return newValidationError("embedding", "max_retries", errors.New("must not be negative"))
	}
	if cfg.Scheduler.IntervalSeconds < 1 {
		return newValidationError("scheduler", "interval_seconds", errors.New("must be at least 1"))
	}
	if cfg.Scheduler.BatchSize < 1 {
		return newValidationError("scheduler", "batch_size", errors.New("must be at least 1"))
	}
	if cfg.Scheduler.AlertConcurrency < 1 {
		return newValidationError("scheduler", "alert_concurrency", errors.New("must be at least 1"))
	}
	if cfg.Retrieval.Concurrency < 1 {
		return newValidationError("retrieval", "concurrency", errors.New("must be at least 1"))
	}
	if cfg.Retrieval.K < 1 {
		return newValidationError("retrieval", "k", errors.New("must be at least 1"))
	}
	if cfg.Retrieval.SimilarityThreshold < -1 || cfg.Retrieval.SimilarityThreshold > 1 {
		return newValidationError("retrieval", "similarity_threshold", errors.New("must be in [-1, 1]"))
	}
	return nil
}
