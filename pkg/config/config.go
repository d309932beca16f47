// Package config loads and validates the argus configuration: store
// endpoints, provider credentials, scheduler cadence, and the retrieval
// tuning knobs.
package config

import "time"

// Config is the fully merged, validated runtime configuration.
type Config struct {
	LogFormat string `yaml:"log_format"` // "text" or "json"
	HTTPPort  string `yaml:"http_port"`

	VectorStore VectorStoreConfig `yaml:"vector_store"`
	GraphStore  GraphStoreConfig  `yaml:"graph_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
}

// VectorStoreConfig points at the SIEM alert index.
type VectorStoreConfig struct {
	Addresses          []string `yaml:"addresses"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Index              string   `yaml:"index"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	MaxRetries         int      `yaml:"max_retries"`
}

// GraphStoreConfig points at the threat knowledge graph. The graph store
// is optional: an empty URI means the pipeline runs vector-only.
type GraphStoreConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether a graph store was configured at all.
func (g GraphStoreConfig) Enabled() bool { return g.URI != "" }

// EmbeddingConfig selects the embedding provider and output dimension.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimension  int    `yaml:"dimension"`
	MaxRetries int    `yaml:"max_retries"`
}

// LLMConfig selects the chat completion provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai" or "anthropic"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
}

// SchedulerConfig tunes the poll loop.
type SchedulerConfig struct {
	IntervalSeconds  int `yaml:"interval_seconds"`
	BatchSize        int `yaml:"batch_size"`
	AlertConcurrency int `yaml:"alert_concurrency"`
}

// Interval returns the poll interval as a duration.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// RetrievalConfig tunes the hybrid retriever and the graph persister.
type RetrievalConfig struct {
	Concurrency              int     `yaml:"concurrency"`
	K                        int     `yaml:"k"`
	ResultCap                int     `yaml:"result_cap"`
	GraphMinimum             int     `yaml:"graph_minimum"`
	CorrelationWindowSeconds int     `yaml:"correlation_window_seconds"`
	SimilarityThreshold      float64 `yaml:"similarity_threshold"`
}

// CorrelationWindow returns the PRECEDES correlation window as a duration.
func (r RetrievalConfig) CorrelationWindow() time.Duration {
	return time.Duration(r.CorrelationWindowSeconds) * time.Second
}

// TimeoutConfig bounds every external call class.
type TimeoutConfig struct {
	EmbeddingSeconds   int `yaml:"embedding_seconds"`
	VectorStoreSeconds int `yaml:"vector_store_seconds"`
	GraphStoreSeconds  int `yaml:"graph_store_seconds"`
	LLMSeconds         int `yaml:"llm_seconds"`
}

// Embedding returns the embedding call timeout.
func (t TimeoutConfig) Embedding() time.Duration {
	return time.Duration(t.EmbeddingSeconds) * time.Second
}

// VectorStore returns the vector store call timeout.
func (t TimeoutConfig) VectorStore() time.Duration {
	return time.Duration(t.VectorStoreSeconds) * time.Second
}

// GraphStore returns the per-template graph query timeout.
func (t TimeoutConfig) GraphStore() time.Duration {
	return time.Duration(t.GraphStoreSeconds) * time.Second
}

// LLM returns the chat completion timeout.
func (t TimeoutConfig) LLM() time.Duration {
	return time.Duration(t.LLMSeconds) * time.Second
}
