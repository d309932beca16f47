package retriever

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/models"
)

type fakeVectorStore struct {
	mu           sync.Mutex
	knnResults   []models.Evidence
	knnErr       error
	keywordCalls []models.KeywordParams
	keywordHits  []models.Evidence
	keywordErr   error

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (f *fakeVectorStore) trackConcurrency() func() {
	current := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if current <= max || f.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeVectorStore) ListUnprocessed(ctx context.Context, limit int) ([]*models.Alert, error) {
	return nil, nil
}

func (f *fakeVectorStore) KNN(ctx context.Context, vector []float32, k int) ([]models.Evidence, error) {
	defer f.trackConcurrency()()
	time.Sleep(5 * time.Millisecond)
	if f.knnErr != nil {
		return nil, f.knnErr
	}
	return f.knnResults, nil
}

func (f *fakeVectorStore) KeywordTimeWindow(ctx context.Context, params models.KeywordParams) ([]models.Evidence, error) {
	defer f.trackConcurrency()()
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	f.keywordCalls = append(f.keywordCalls, params)
	f.mu.Unlock()
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	return f.keywordHits, nil
}

func (f *fakeVectorStore) UpdateEnrichment(ctx context.Context, alertID string, vector []float32, analysis *models.AIAnalysis) error {
	return nil
}

type fakeGraphStore struct {
	available bool
	results   map[string][]models.Evidence
	err       error
	calls     atomic.Int64
}

func (f *fakeGraphStore) Available() bool { return f.available }

func (f *fakeGraphStore) RunTemplate(ctx context.Context, name string, params map[string]any, timeout time.Duration) ([]models.Evidence, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[name], nil
}

func (f *fakeGraphStore) Upsert(ctx context.Context, entities []models.Entity, relationships []models.Relationship) (models.UpsertSummary, error) {
	return models.UpsertSummary{}, nil
}

func testConfig() (config.RetrievalConfig, config.TimeoutConfig) {
	return config.RetrievalConfig{
			Concurrency:              8,
			K:                        5,
			ResultCap:                50,
			GraphMinimum:             10,
			CorrelationWindowSeconds: 1800,
			SimilarityThreshold:      0.7,
		}, config.TimeoutConfig{
			EmbeddingSeconds:   10,
			VectorStoreSeconds: 5,
			GraphStoreSeconds:  30,
			LLMSeconds:         25,
		}
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:        "a1",
		Timestamp: time.Now().UTC(),
		Rule:      &models.Rule{Description: "test", Level: 8},
		Agent:     &models.Agent{ID: "A1", Name: "web-01"},
	}
}

func knnTask() models.RetrievalTask {
	return models.RetrievalTask{
		Kind: models.TaskVectorKNN, Priority: models.PriorityHigh,
		Slot: models.SlotSimilarAlerts, Vector: &models.VectorParams{K: 5},
	}
}

func cypherTask(slot models.Slot, template string) models.RetrievalTask {
	return models.RetrievalTask{
		Kind: models.TaskCypherTemplate, Priority: models.PriorityCritical,
		Slot: slot, Cypher: &models.CypherParams{Template: template, Params: map[string]any{}},
	}
}

func TestRetrieve_MergesVectorAndGraphResults(t *testing.T) {
	vectors := &fakeVectorStore{knnResults: []models.Evidence{{Source: models.SourceVector, AlertID: "h1", Score: 0.9}}}
	graph := &fakeGraphStore{
		available: true,
		results: map[string][]models.Evidence{
			"attack_source_panorama": {{Source: models.SourceGraph}, {Source: models.SourceGraph}},
		},
	}
	cfg, timeouts := testConfig()
	r := New(vectors, graph, cfg, timeouts, nil)

	plan := models.Plan{Tasks: []models.RetrievalTask{
		knnTask(),
		cypherTask(models.SlotAttackPaths, "attack_source_panorama"),
	}}
	bundle := r.Retrieve(context.Background(), testAlert(), plan, []float32{0.1})

	assert.Len(t, bundle.Get(models.SlotSimilarAlerts), 1)
	assert.Len(t, bundle.Get(models.SlotAttackPaths), 2)
}

func TestRetrieve_DegradedGraphSkipsCypherTasks(t *testing.T) {
	vectors := &fakeVectorStore{knnResults: []models.Evidence{{AlertID: "h1"}}}
	graph := &fakeGraphStore{available: false}
	cfg, timeouts := testConfig()
	r := New(vectors, graph, cfg, timeouts, nil)

	plan := models.Plan{Tasks: []models.RetrievalTask{
		knnTask(),
		cypherTask(models.SlotAttackPaths, "attack_source_panorama"),
		cypherTask(models.SlotLateralMovement, "lateral_movement_detection"),
	}}
	bundle := r.Retrieve(context.Background(), testAlert(), plan, []float32{0.1})

	assert.Equal(t, int64(0), graph.calls.Load(), "no graph calls in degraded mode")
	assert.Empty(t, bundle.Get(models.SlotAttackPaths))
	assert.Empty(t, bundle.Get(models.SlotLateralMovement))
	assert.Equal(t, 0, bundle.GraphHitCount())
	assert.Len(t, bundle.Get(models.SlotSimilarAlerts), 1)
}

func TestRetrieve_TaskFailureIsolatedToSlot(t *testing.T) {
	vectors := &fakeVectorStore{knnResults: []models.Evidence{{AlertID: "h1"}}}
	graph := &fakeGraphStore{available: true, err: errors.New("cypher timeout")}
	cfg, timeouts := testConfig()
	r := New(vectors, graph, cfg, timeouts, nil)

	plan := models.Plan{Tasks: []models.RetrievalTask{
		knnTask(),
		cypherTask(models.SlotAttackPaths, "attack_source_panorama"),
	}}
	bundle := r.Retrieve(context.Background(), testAlert(), plan, []float32{0.1})

	assert.Empty(t, bundle.Get(models.SlotAttackPaths))
	assert.Contains(t, bundle.Failures[models.SlotAttackPaths], "cypher timeout")
	assert.Len(t, bundle.Get(models.SlotSimilarAlerts), 1, "vector slot unaffected")
}

func TestRetrieve_ResultCapPerSlot(t *testing.T) {
	many := make([]models.Evidence, 120)
	vectors := &fakeVectorStore{knnResults: many}
	graph := &fakeGraphStore{available: true}
	cfg, timeouts := testConfig()
	r := New(vectors, graph, cfg, timeouts, nil)

	plan := models.Plan{Tasks: []models.RetrievalTask{knnTask()}}
	bundle := r.Retrieve(context.Background(), testAlert(), plan, []float32{0.1})

	assert.Len(t, bundle.Get(models.SlotSimilarAlerts), cfg.ResultCap)
}

func TestRetrieve_LegacyFallbackWhenGraphThin(t *testing.T) {
	vectors := &fakeVectorStore{keywordHits: []models.Evidence{{Source: models.SourceKeyword}}}
	graph := &fakeGraphStore{available: true} // returns no rows
	cfg, timeouts := testConfig()
	r := New(vectors, graph, cfg, timeouts, nil)

	plan := models.Plan{Tasks: []models.RetrievalTask{
		knnTask(),
		cypherTask(models.SlotAttackPaths, "attack_source_panorama"),
	}}
	bundle := r.Retrieve(context.Background(), testAlert(), plan, []float32{0.1})

	require.NotEmpty(t, vectors.keywordCalls, "fallback keyword searches ran")
	assert.NotEmpty(t, bundle.Get(models.SlotProcessData))
	assert.NotEmpty(t, bundle.Get(models.SlotHostMetrics))
	assert.NotEmpty(t, bundle.Get(models.SlotNetworkLogs))

	for _, call := range vectors.keywordCalls {
		assert.Equal(t, "web-01", call.Host)
		assert.Equal(t, 4*time.Minute, call.To.Sub(call.From), "fallback uses a ±2 minute window")
	}
}

func TestRetrieve_NoFallbackWhenPlanHadKeywordTasks(t *testing.T) {
	vectors := &fakeVectorStore{keywordHits: []models.Evidence{{Source: models.SourceKeyword}}}
	graph := &fakeGraphStore{available: false}
	cfg, timeouts := testConfig()
	r := New(vectors, graph, cfg, timeouts, nil)

	plan := models.Plan{Tasks: []models.RetrievalTask{
		knnTask(),
		{
			Kind: models.TaskKeywordTimeWindow, Priority: models.PriorityMedium,
			Slot: models.SlotProcessData,
			Keyword: &models.KeywordParams{
				Keywords: []string{"cpu"}, Host: "web-01",
				From: time.Now().Add(-time.Minute), To: time.Now().Add(time.Minute), Size: 50,
			},
		},
	}}
	r.Retrieve(context.Background(), testAlert(), plan, []float32{0.1})

	assert.Len(t, vectors.keywordCalls, 1, "only the planned keyword task ran")
}

func TestRetrieve_BoundedConcurrency(t *testing.T) {
	vectors := &fakeVectorStore{}
	graph := &fakeGraphStore{available: false}
	cfg, timeouts := testConfig()
	cfg.Concurrency = 2
	cfg.GraphMinimum = 0
	r := New(vectors, graph, cfg, timeouts, nil)

	var tasks []models.RetrievalTask
	for i := 0; i < 10; i++ {
		tasks = append(tasks, models.RetrievalTask{
			Kind: models.TaskKeywordTimeWindow, Priority: models.PriorityMedium,
			Slot: models.SlotProcessData,
			Keyword: &models.KeywordParams{
				Keywords: []string{"x"}, Host: "h",
				From: time.Now(), To: time.Now(), Size: 10,
			},
		})
	}
	r.Retrieve(context.Background(), testAlert(), models.Plan{Tasks: tasks}, nil)

	assert.LessOrEqual(t, vectors.maxInFlight.Load(), int64(2))
}
