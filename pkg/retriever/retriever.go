// Package retriever executes retrieval plans against the vector and
// graph stores and merges the results into a context bundle. Task
// failures are isolated to their slot; the bundle always comes back.
package retriever

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/graphstore"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/models"
	"github.com/codeready-toolchain/argus/pkg/vectorstore"
)

// Retriever fans retrieval tasks out with bounded concurrency.
type Retriever struct {
	vectors  vectorstore.Store
	graph    graphstore.Store
	cfg      config.RetrievalConfig
	timeouts config.TimeoutConfig
	metrics  *metrics.Metrics
}

// New builds a retriever. metrics may be nil in tests.
func New(vectors vectorstore.Store, graph graphstore.Store, cfg config.RetrievalConfig, timeouts config.TimeoutConfig, m *metrics.Metrics) *Retriever {
	return &Retriever{vectors: vectors, graph: graph, cfg: cfg, timeouts: timeouts, metrics: m}
}

// Retrieve executes the plan for one alert. Tasks dispatch in priority
// order up to the configured fan-out, each under its own timeout. When
// the graph store is degraded, cypher tasks are skipped and their slots
// stay empty. A thin graph result triggers the legacy keyword fallback
// when the plan ran no keyword tasks of its own.
func (r *Retriever) Retrieve(ctx context.Context, alert *models.Alert, plan models.Plan, vector []float32) *models.ContextBundle {
	plan.SortByPriority()
	bundle := models.NewContextBundle()

	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	var wg sync.WaitGroup

	keywordTasksRan := false
	for _, task := range plan.Tasks {
		if task.Kind == models.TaskCypherTemplate && !r.graph.Available() {
			r.countTask(task.Kind, "skipped")
			continue
		}
		if task.Kind == models.TaskKeywordTimeWindow {
			keywordTasksRan = true
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// Shutdown while queueing: leave remaining slots empty.
			break
		}
		wg.Add(1)
		go func(task models.RetrievalTask) {
			defer wg.Done()
			defer sem.Release(1)

			records, err := r.execute(ctx, task, vector)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("Retrieval task failed",
					"kind", task.Kind, "slot", task.Slot, "error", err)
				bundle.MarkFailed(task.Slot, err.Error())
				r.countTask(task.Kind, "failed")
				return
			}
			bundle.Add(task.Slot, r.cfg.ResultCap, records...)
			r.countTask(task.Kind, "ok")
		}(task)
	}
	wg.Wait()

	if bundle.GraphHitCount() < r.cfg.GraphMinimum && !keywordTasksRan {
		r.legacyFallback(ctx, alert, bundle)
	}
	return bundle
}

// execute runs one task under its class timeout.
func (r *Retriever) execute(ctx context.Context, task models.RetrievalTask, vector []float32) ([]models.Evidence, error) {
	switch task.Kind {
	case models.TaskVectorKNN:
		callCtx, cancel := context.WithTimeout(ctx, r.timeouts.VectorStore())
		defer cancel()
		return r.vectors.KNN(callCtx, vector, task.Vector.K)

	case models.TaskKeywordTimeWindow:
		callCtx, cancel := context.WithTimeout(ctx, r.timeouts.VectorStore())
		defer cancel()
		return r.vectors.KeywordTimeWindow(callCtx, *task.Keyword)

	case models.TaskCypherTemplate:
		return r.graph.RunTemplate(ctx, task.Cypher.Template, task.Cypher.Params, r.timeouts.GraphStore())

	default:
		return nil, nil
	}
}

// legacyFallback enriches a graph-thin bundle with the default keyword
// searches around the alert's host.
func (r *Retriever) legacyFallback(ctx context.Context, alert *models.Alert, bundle *models.ContextBundle) {
	host := alert.HostName()
	if host == "" {
		return
	}

	defaults := []struct {
		slot     models.Slot
		keywords []string
	}{
		{models.SlotProcessData, []string{"process", "cpu", "usage"}},
		{models.SlotHostMetrics, []string{"memory", "load", "usage"}},
		{models.SlotNetworkLogs, []string{"network", "connection", "traffic"}},
	}

	for _, d := range defaults {
		if len(bundle.Get(d.slot)) > 0 {
			continue
		}
		params := models.KeywordParams{
			Keywords: d.keywords,
			Host:     host,
			From:     alert.Timestamp.Add(-2 * time.Minute),
			To:       alert.Timestamp.Add(2 * time.Minute),
			Size:     r.cfg.ResultCap,
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeouts.VectorStore())
		records, err := r.vectors.KeywordTimeWindow(callCtx, params)
		cancel()
		if err != nil {
			slog.Warn("Fallback retrieval failed", "slot", d.slot, "error", err)
			bundle.MarkFailed(d.slot, err.Error())
			r.countTask(models.TaskKeywordTimeWindow, "failed")
			continue
		}
		bundle.Add(d.slot, r.cfg.ResultCap, records...)
		r.countTask(models.TaskKeywordTimeWindow, "ok")
	}
}

func (r *Retriever) countTask(kind models.TaskKind, outcome string) {
	if r.metrics != nil {
		r.metrics.RetrievalTasks.WithLabelValues(string(kind), outcome).Inc()
	}
}
