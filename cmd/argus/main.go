// Argus triage server - polls the SIEM index for new alerts, runs the
// AI triage pipeline, and grows the threat knowledge graph.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/argus/pkg/analyzer"
	"github.com/codeready-toolchain/argus/pkg/api"
	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/embedding"
	"github.com/codeready-toolchain/argus/pkg/graphstore"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/persister"
	"github.com/codeready-toolchain/argus/pkg/planner"
	"github.com/codeready-toolchain/argus/pkg/processor"
	"github.com/codeready-toolchain/argus/pkg/retriever"
	"github.com/codeready-toolchain/argus/pkg/scheduler"
	"github.com/codeready-toolchain/argus/pkg/vectorstore"
	"github.com/codeready-toolchain/argus/pkg/version"
)

func main() {
	configPath := flag.String("config", getEnv("ARGUS_CONFIG", "./deploy/argus.yaml"),
		"Path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.LogFormat)
	slog.Info("Starting argus", "version", version.Full())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Vector store is required: without it there is nothing to poll.
	vectors, err := vectorstore.New(cfg.VectorStore, cfg.Embedding.Dimension)
	if err != nil {
		log.Fatalf("Failed to build vector store client: %v", err)
	}
	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := vectors.Ping(startupCtx); err != nil {
		startupCancel()
		log.Fatalf("Vector store unreachable: %v", err)
	}
	if err := vectors.EnsureIndexTemplate(startupCtx); err != nil {
		slog.Error("Index template installation failed, continuing", "error", err)
	}

	// Graph store is optional: unreachable means permanent degraded mode.
	graph := graphstore.Connect(startupCtx, cfg.GraphStore)
	defer graph.Close(context.Background())
	if graph.Available() {
		if err := graph.EnsureSchema(startupCtx); err != nil {
			slog.Error("Graph schema init failed, continuing", "error", err)
		}
	}
	startupCancel()

	embedder := embedding.NewOpenAIClient(
		cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model,
		cfg.Embedding.Dimension, cfg.Embedding.MaxRetries, m)

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to build LLM client: %v", err)
	}
	slog.Info("LLM provider configured", "provider", llmClient.ProviderID())

	plannerEngine := planner.New(cfg.Retrieval)
	retrieverEngine := retriever.New(vectors, graph, cfg.Retrieval, cfg.Timeouts, m)
	analyzerEngine := analyzer.New(llmClient, cfg.Timeouts.LLM(), m)
	persisterEngine := persister.New(graph, cfg.Retrieval, m)

	pipeline := processor.New(
		embedder, vectors, plannerEngine, retrieverEngine, analyzerEngine, persisterEngine,
		cfg.Timeouts.Embedding(), cfg.Timeouts.VectorStore(), m)

	sched := scheduler.New(vectors, pipeline, cfg.Scheduler, m)
	sched.Start(ctx)

	server := api.NewServer(cfg.HTTPPort, vectors, graph, sched, m, llmClient.ProviderID())
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")

	// Finish the current tick, then stop everything else.
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Shutdown complete")
}

func setupLogging(format string) {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
