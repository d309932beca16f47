package config

// defaults returns the built-in configuration merged under user values.
func defaults() *Config {
	return &Config{
		LogFormat: "text",
		HTTPPort:  "8080",
		VectorStore: VectorStoreConfig{
			Addresses:  []string{"https://localhost:9200"},
			Index:      "wazuh-alerts-*",
			MaxRetries: 3,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimension:  768,
			MaxRetries: 3,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   2048,
			MaxRetries:  3,
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds:  60,
			BatchSize:        10,
			AlertConcurrency: 5,
		},
		Retrieval: RetrievalConfig{
			Concurrency:              8,
			K:                        5,
			ResultCap:                50,
			GraphMinimum:             10,
			CorrelationWindowSeconds: 1800,
			SimilarityThreshold:      0.7,
		},
		Timeouts: TimeoutConfig{
			EmbeddingSeconds:   10,
			VectorStoreSeconds: 5,
			GraphStoreSeconds:  30,
			LLMSeconds:         25,
		},
	}
}
