package persister

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/models"
)

type fakeGraph struct {
	available     bool
	err           error
	summary       models.UpsertSummary
	entities      []models.Entity
	relationships []models.Relationship
}

func (f *fakeGraph) Available() bool { return f.available }

func (f *fakeGraph) RunTemplate(ctx context.Context, name string, params map[string]any, timeout time.Duration) ([]models.Evidence, error) {
	return nil, nil
}

func (f *fakeGraph) Upsert(ctx context.Context, entities []models.Entity, relationships []models.Relationship) (models.UpsertSummary, error) {
	f.entities = entities
	f.relationships = relationships
	if f.err != nil {
		return models.UpsertSummary{}, f.err
	}
	return f.summary, nil
}

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		SimilarityThreshold:      0.7,
		CorrelationWindowSeconds: 1800,
	}
}

func TestPersist_WritesExtraction(t *testing.T) {
	graph := &fakeGraph{
		available: true,
		summary:   models.UpsertSummary{NodesCreated: 5, RelationshipsCreated: 4, Persisted: true},
	}
	p := New(graph, retrievalConfig(), nil)

	stats := p.Persist(context.Background(), sshAlert(), models.NewContextBundle(), "high", "report")

	assert.True(t, stats.Persisted)
	assert.Equal(t, 5, stats.EntitiesCreated)
	assert.Equal(t, 4, stats.RelationshipsCreated)
	require.NotEmpty(t, graph.entities)
	require.NotEmpty(t, graph.relationships)
}

func TestPersist_DegradedModeStillExtracts(t *testing.T) {
	graph := &fakeGraph{available: false}
	p := New(graph, retrievalConfig(), nil)

	stats := p.Persist(context.Background(), sshAlert(), models.NewContextBundle(), "high", "report")

	assert.False(t, stats.Persisted)
	assert.Zero(t, stats.EntitiesCreated)
	assert.Nil(t, graph.entities, "no upsert attempted in degraded mode")
}

func TestPersist_UpsertFailureIsNonFatal(t *testing.T) {
	graph := &fakeGraph{available: true, err: errors.New("connection reset")}
	p := New(graph, retrievalConfig(), nil)

	stats := p.Persist(context.Background(), sshAlert(), models.NewContextBundle(), "high", "report")

	assert.False(t, stats.Persisted)
}
