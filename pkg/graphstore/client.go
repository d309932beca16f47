// Package graphstore adapts the threat knowledge graph (Neo4j) for the
// triage pipeline: schema init, parameterized template traversals, and
// idempotent entity/relationship upserts.
//
// The store has an explicit degraded mode: when the driver cannot be
// reached at startup every operation reports unavailable instead of
// failing the pipeline. Callers skip graph work and run vector-only.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/models"
)

// ErrUnavailable is the sentinel for degraded mode.
var ErrUnavailable = errors.New("graph store unavailable")

// Store is the graph surface the pipeline depends on.
type Store interface {
	// Available reports whether the graph backend is reachable. When
	// false, RunTemplate and Upsert return ErrUnavailable immediately.
	Available() bool

	// RunTemplate executes a named traversal from the registry with the
	// given parameters, bounded by timeout, and returns the evidence rows.
	RunTemplate(ctx context.Context, name string, params map[string]any, timeout time.Duration) ([]models.Evidence, error)

	// Upsert merges entities and relationships into the graph. Edges
	// whose endpoints cannot be matched are skipped and counted, never
	// fatal.
	Upsert(ctx context.Context, entities []models.Entity, relationships []models.Relationship) (models.UpsertSummary, error)
}

var _ Store = (*Neo4jStore)(nil)

// Neo4jStore implements Store over the bolt driver.
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	templates *TemplateRegistry
	available bool
}

// Connect builds the store. An empty URI or an unreachable server yields
// a store in permanent degraded mode; that is logged, not returned as an
// error, so the pipeline can still start.
func Connect(ctx context.Context, cfg config.GraphStoreConfig) *Neo4jStore {
	store := &Neo4jStore{templates: NewTemplateRegistry()}

	if !cfg.Enabled() {
		slog.Warn("Graph store not configured, running vector-only")
		return store
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		slog.Error("Graph driver construction failed, running degraded", "uri", cfg.URI, "error", err)
		return store
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		slog.Error("Graph store unreachable, running degraded", "uri", cfg.URI, "error", err)
		_ = driver.Close(ctx)
		return store
	}

	store.driver = driver
	store.available = true
	slog.Info("Connected to graph store", "uri", cfg.URI)
	return store
}

// Available reports whether the backend was reachable at startup.
func (s *Neo4jStore) Available() bool { return s.available }

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// schemaStatements create the uniqueness constraints and secondary
// indexes the traversal templates rely on. Composite-identity labels
// (Process, ThreatIndicator) get plain indexes; their uniqueness is
// enforced by the MERGE identity itself.
var schemaStatements = []string{
	"CREATE CONSTRAINT alert_id IF NOT EXISTS FOR (a:Alert) REQUIRE a.id IS UNIQUE",
	"CREATE CONSTRAINT host_agent_id IF NOT EXISTS FOR (h:Host) REQUIRE h.agent_id IS UNIQUE",
	"CREATE CONSTRAINT ip_address IF NOT EXISTS FOR (i:IPAddress) REQUIRE i.address IS UNIQUE",
	"CREATE CONSTRAINT user_name IF NOT EXISTS FOR (u:User) REQUIRE u.username IS UNIQUE",
	"CREATE CONSTRAINT file_path IF NOT EXISTS FOR (f:File) REQUIRE f.path IS UNIQUE",
	"CREATE CONSTRAINT rule_id IF NOT EXISTS FOR (r:Rule) REQUIRE r.id IS UNIQUE",
	"CREATE INDEX alert_timestamp IF NOT EXISTS FOR (a:Alert) ON (a.timestamp)",
	"CREATE INDEX process_identity IF NOT EXISTS FOR (p:Process) ON (p.name, p.host)",
	"CREATE INDEX indicator_identity IF NOT EXISTS FOR (t:ThreatIndicator) ON (t.value, t.kind)",
}

// EnsureSchema creates constraints and indexes when missing. Safe to call
// repeatedly; a degraded store is a no-op.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	if !s.available {
		return ErrUnavailable
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	slog.Info("Graph schema ensured", "statements", len(schemaStatements))
	return nil
}

// run executes one parameterized query in a fresh session and collects
// all records. Parameters are always passed as query parameters, never
// interpolated.
func (s *Neo4jStore) run(ctx context.Context, query string, params map[string]any, timeout time.Duration) ([]*neo4j.Record, error) {
	if !s.available {
		return nil, ErrUnavailable
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, nil
}

// RunTemplate looks up a named traversal and executes it.
func (s *Neo4jStore) RunTemplate(ctx context.Context, name string, params map[string]any, timeout time.Duration) ([]models.Evidence, error) {
	tmpl, err := s.templates.Get(name)
	if err != nil {
		return nil, err
	}
	records, err := s.run(ctx, tmpl.Query, params, timeout)
	if err != nil {
		return nil, err
	}
	return recordsToEvidence(records), nil
}
