// Package processor orchestrates the per-alert pipeline: embed, plan,
// retrieve, format, analyze, write back, persist to the graph. Every
// alert terminates with ai_analysis written so the scheduler never
// reselects it.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/argus/pkg/analyzer"
	"github.com/codeready-toolchain/argus/pkg/contextfmt"
	"github.com/codeready-toolchain/argus/pkg/embedding"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/models"
	"github.com/codeready-toolchain/argus/pkg/persister"
	"github.com/codeready-toolchain/argus/pkg/planner"
	"github.com/codeready-toolchain/argus/pkg/retriever"
	"github.com/codeready-toolchain/argus/pkg/vectorstore"
)

// Terminal outcomes reported per alert.
const (
	OutcomeEnriched       = "enriched"
	OutcomeAnalysisFailed = "analysis_failed"
	OutcomeUnprocessable  = "unprocessable"
	OutcomeFailed         = "failed"
)

// Processor runs the pipeline for single alerts.
type Processor struct {
	embedder  embedding.Client
	vectors   vectorstore.Store
	planner   *planner.Planner
	retriever *retriever.Retriever
	analyzer  *analyzer.Analyzer
	persister *persister.Persister
	timeouts  timeouts
	metrics   *metrics.Metrics
}

type timeouts struct {
	embedding   time.Duration
	vectorStore time.Duration
}

// New wires the pipeline stages together.
func New(
	embedder embedding.Client,
	vectors vectorstore.Store,
	plannerEngine *planner.Planner,
	retrieverEngine *retriever.Retriever,
	analyzerEngine *analyzer.Analyzer,
	persisterEngine *persister.Persister,
	embeddingTimeout, vectorStoreTimeout time.Duration,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		embedder:  embedder,
		vectors:   vectors,
		planner:   plannerEngine,
		retriever: retrieverEngine,
		analyzer:  analyzerEngine,
		persister: persisterEngine,
		timeouts:  timeouts{embedding: embeddingTimeout, vectorStore: vectorStoreTimeout},
		metrics:   m,
	}
}

// Process runs one alert through the pipeline and returns its terminal
// outcome. Dependency failures degrade to partial enrichment; only
// cancellation aborts without a write.
func (p *Processor) Process(ctx context.Context, alert *models.Alert) (string, error) {
	start := time.Now()
	log := slog.With("alert_id", alert.ID)

	if err := alert.Validate(); err != nil {
		log.Warn("Alert unprocessable", "error", err)
		// Best-effort vector so the malformed alert still correlates.
		vector, _ := p.embed(ctx, alert)
		return OutcomeUnprocessable, p.writeTerminal(ctx, alert, vector, start, models.StageUnprocessable,
			fmt.Sprintf("Alert could not be processed: %v. It is excluded from further triage.", err))
	}

	// Step 2: embed.
	vector, err := p.embed(ctx, alert)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return OutcomeFailed, err
		}
		log.Warn("Embedding unavailable, writing partial enrichment", "error", err)
		return OutcomeAnalysisFailed, p.writeTerminal(ctx, alert, nil, start, models.StageAnalysisFailed,
			fmt.Sprintf("Enrichment failed before analysis: %v", err))
	}

	// Steps 3-4: plan and retrieve. Neither can fail; task errors land in
	// the bundle as empty slots.
	plan := p.stagePlan(alert)
	bundle := p.stageRetrieve(ctx, alert, plan, vector)

	// Steps 5-6: format and analyze.
	formatted := p.stageFormat(bundle)
	report := p.stageAnalyze(ctx, alert, formatted)

	// Steps 7-8: assemble and write back, graph stats pending.
	analysis := &models.AIAnalysis{
		ReportText:   report.Text,
		ProviderID:   report.ProviderID,
		Timestamp:    time.Now().UTC(),
		RiskLevel:    report.RiskLevel,
		PlanSummary:  plan.Summary(),
		ProcessingMS: time.Since(start).Milliseconds(),
		StageMarker:  models.StageCompleted,
	}
	if report.Failed {
		analysis.StageMarker = models.StageAnalysisFailed
	}

	if err := p.writeEnrichment(ctx, alert.ID, vector, analysis); err != nil {
		log.Error("Enrichment write failed", "error", err)
		return OutcomeFailed, err
	}

	// Steps 9-10: grow the graph, then refresh graph stats if they
	// changed. The second write is skipped when it would be a no-op.
	stats := p.stagePersist(ctx, alert, bundle, report)
	if stats != analysis.GraphStats {
		analysis.GraphStats = stats
		if err := p.writeEnrichment(ctx, alert.ID, vector, analysis); err != nil {
			log.Warn("Graph stats write-back failed", "error", err)
		}
	}

	if report.Failed {
		return OutcomeAnalysisFailed, nil
	}
	log.Info("Alert triaged",
		"risk_level", report.RiskLevel,
		"graph_present", formatted.GraphPresent,
		"duration_ms", time.Since(start).Milliseconds())
	return OutcomeEnriched, nil
}

func (p *Processor) embed(ctx context.Context, alert *models.Alert) ([]float32, error) {
	defer p.observeStage("embed", time.Now())
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.embedding)
	defer cancel()
	return p.embedder.EmbedAlert(callCtx, alert)
}

func (p *Processor) stagePlan(alert *models.Alert) models.Plan {
	defer p.observeStage("plan", time.Now())
	return p.planner.Plan(alert)
}

func (p *Processor) stageRetrieve(ctx context.Context, alert *models.Alert, plan models.Plan, vector []float32) *models.ContextBundle {
	defer p.observeStage("retrieve", time.Now())
	return p.retriever.Retrieve(ctx, alert, plan, vector)
}

func (p *Processor) stageFormat(bundle *models.ContextBundle) *contextfmt.FormattedContext {
	defer p.observeStage("format", time.Now())
	return contextfmt.Format(bundle)
}

func (p *Processor) stageAnalyze(ctx context.Context, alert *models.Alert, formatted *contextfmt.FormattedContext) *analyzer.Report {
	defer p.observeStage("analyze", time.Now())
	return p.analyzer.Analyze(ctx, alert.Summary(), formatted)
}

func (p *Processor) stagePersist(ctx context.Context, alert *models.Alert, bundle *models.ContextBundle, report *analyzer.Report) models.GraphStats {
	defer p.observeStage("persist", time.Now())
	return p.persister.Persist(ctx, alert, bundle, report.RiskLevel, report.Text)
}

func (p *Processor) writeEnrichment(ctx context.Context, alertID string, vector []float32, analysis *models.AIAnalysis) error {
	defer p.observeStage("writeback", time.Now())
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.vectorStore)
	defer cancel()
	return p.vectors.UpdateEnrichment(callCtx, alertID, vector, analysis)
}

// writeTerminal records a degraded enrichment so the alert leaves the
// unprocessed set. vector may be nil when the embedder was the failing
// dependency.
func (p *Processor) writeTerminal(ctx context.Context, alert *models.Alert, vector []float32, start time.Time, stage, reportText string) error {
	analysis := &models.AIAnalysis{
		ReportText:   reportText,
		RiskLevel:    models.RiskUnknown,
		Timestamp:    time.Now().UTC(),
		ProcessingMS: time.Since(start).Milliseconds(),
		StageMarker:  stage,
	}
	return p.writeEnrichment(ctx, alert.ID, vector, analysis)
}

func (p *Processor) observeStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
