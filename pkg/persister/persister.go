package persister

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/graphstore"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/models"
)

// Persister extracts the graph write set for an alert and upserts it.
type Persister struct {
	graph   graphstore.Store
	cfg     config.RetrievalConfig
	metrics *metrics.Metrics
}

// New builds a persister. metrics may be nil in tests.
func New(graph graphstore.Store, cfg config.RetrievalConfig, m *metrics.Metrics) *Persister {
	return &Persister{graph: graph, cfg: cfg, metrics: m}
}

// Persist grows the graph from one processed alert. Extraction always
// runs; when the graph store is degraded the stats report persisted
// false and nothing propagates.
func (p *Persister) Persist(ctx context.Context, alert *models.Alert, bundle *models.ContextBundle, riskLevel, reportText string) models.GraphStats {
	extraction := Extract(alert, bundle, riskLevel, reportText,
		p.cfg.SimilarityThreshold, p.cfg.CorrelationWindow())

	if !p.graph.Available() {
		return models.GraphStats{Persisted: false}
	}

	summary, err := p.graph.Upsert(ctx, extraction.Entities, extraction.Relationships)
	if err != nil {
		slog.Warn("Graph persistence failed", "alert_id", alert.ID, "error", err)
		return models.GraphStats{Persisted: false}
	}

	if p.metrics != nil {
		p.metrics.GraphNodesCreated.Add(float64(summary.NodesCreated))
		p.metrics.GraphRelsCreated.Add(float64(summary.RelationshipsCreated))
		p.metrics.GraphEdgesSkipped.Add(float64(summary.EdgesSkipped))
	}
	if summary.EdgesSkipped > 0 {
		slog.Info("Graph upsert dropped edges with missing endpoints",
			"alert_id", alert.ID, "skipped", summary.EdgesSkipped)
	}

	return models.GraphStats{
		EntitiesCreated:      summary.NodesCreated,
		RelationshipsCreated: summary.RelationshipsCreated,
		EdgesSkipped:         summary.EdgesSkipped,
		Persisted:            true,
	}
}
