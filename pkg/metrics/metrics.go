// Package metrics registers the Prometheus instrumentation for the triage
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline updates. One instance is
// created at startup and passed down; there is no package-level state.
type Metrics struct {
	Registry *prometheus.Registry

	AlertsProcessed   *prometheus.CounterVec // outcome: enriched, analysis_failed, unprocessable, failed
	TicksTotal        prometheus.Counter
	TicksSkipped      prometheus.Counter
	StageDuration     *prometheus.HistogramVec // stage: embed, plan, retrieve, format, analyze, writeback, persist
	RetrievalTasks    *prometheus.CounterVec   // kind, outcome: ok, failed, skipped
	GraphNodesCreated prometheus.Counter
	GraphRelsCreated  prometheus.Counter
	GraphEdgesSkipped prometheus.Counter
	LLMTokens         *prometheus.CounterVec // direction: in, out
	EmbeddingTokens   prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		AlertsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_alerts_processed_total",
			Help: "Alerts that completed the pipeline, by terminal outcome.",
		}, []string{"outcome"}),
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_scheduler_ticks_total",
			Help: "Scheduler ticks executed.",
		}),
		TicksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_scheduler_ticks_skipped_total",
			Help: "Scheduler ticks coalesced because the previous tick overran.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage per alert.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		RetrievalTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_retrieval_tasks_total",
			Help: "Retrieval tasks executed by kind and outcome.",
		}, []string{"kind", "outcome"}),
		GraphNodesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_graph_nodes_created_total",
			Help: "Knowledge graph nodes created by upserts.",
		}),
		GraphRelsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_graph_relationships_created_total",
			Help: "Knowledge graph relationships created by upserts.",
		}),
		GraphEdgesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_graph_edges_skipped_total",
			Help: "Edges dropped because an endpoint node could not be merged.",
		}),
		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_llm_tokens_total",
			Help: "LLM tokens consumed, by direction.",
		}, []string{"direction"}),
		EmbeddingTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_embedding_tokens_total",
			Help: "Tokens consumed by the embedding provider.",
		}),
	}
}
