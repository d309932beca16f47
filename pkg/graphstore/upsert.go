package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// safeIdentifier guards label and relationship names before they are
// spliced into query text. They come from package constants, never from
// alert data; this is belt and suspenders.
var safeIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Upsert merges nodes first, then edges. Every write uses MERGE on the
// identity properties so repeats converge. An edge whose endpoints do
// not both exist is skipped and counted, never fatal for the batch.
func (s *Neo4jStore) Upsert(ctx context.Context, entities []models.Entity, relationships []models.Relationship) (models.UpsertSummary, error) {
	summary := models.UpsertSummary{}
	if !s.available {
		return summary, ErrUnavailable
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, entity := range entities {
		created, err := s.mergeNode(ctx, session, entity)
		if err != nil {
			return summary, fmt.Errorf("merging %s node: %w", entity.Label, err)
		}
		summary.NodesCreated += created
	}

	for _, rel := range relationships {
		created, matched, err := s.mergeEdge(ctx, session, rel)
		switch {
		case err != nil:
			slog.Warn("Edge merge failed, skipping",
				"type", rel.Type, "from", rel.From.Label, "to", rel.To.Label, "error", err)
			summary.EdgesSkipped++
		case !matched:
			slog.Debug("Edge endpoints missing, skipping",
				"type", rel.Type, "from", rel.From.Label, "to", rel.To.Label)
			summary.EdgesSkipped++
		default:
			summary.RelationshipsCreated += created
		}
	}

	summary.Persisted = true
	return summary, nil
}

// mergeNode MERGEs one node on its identity and overlays the remaining
// properties. Returns 1 when the node was created, 0 when matched.
func (s *Neo4jStore) mergeNode(ctx context.Context, session neo4j.SessionWithContext, entity models.Entity) (int, error) {
	if !safeIdentifier.MatchString(entity.Label) {
		return 0, fmt.Errorf("invalid node label %q", entity.Label)
	}
	if len(entity.Identity) == 0 {
		return 0, fmt.Errorf("%s node has no identity", entity.Label)
	}

	query := fmt.Sprintf("MERGE (n:%s {%s}) SET n += $props",
		entity.Label, identityPattern(entity.Identity, "identity"))
	params := map[string]any{
		"identity": entity.Identity,
		"props":    nonNilProps(entity.Props),
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	resultSummary, err := result.Consume(ctx)
	if err != nil {
		return 0, err
	}
	return resultSummary.Counters().NodesCreated(), nil
}

// mergeEdge matches both endpoints and MERGEs the edge between them.
// Returns (created, matched): matched is false when an endpoint is
// absent, which the caller counts as a skip.
func (s *Neo4jStore) mergeEdge(ctx context.Context, session neo4j.SessionWithContext, rel models.Relationship) (int, bool, error) {
	for _, name := range []string{rel.Type, rel.From.Label, rel.To.Label} {
		if !safeIdentifier.MatchString(name) {
			return 0, false, fmt.Errorf("invalid identifier %q", name)
		}
	}

	query := fmt.Sprintf(`
MATCH (a:%s {%s})
MATCH (b:%s {%s})
MERGE (a)-[r:%s]->(b)
SET r += $props
RETURN count(r) AS merged`,
		rel.From.Label, identityPattern(rel.From.Identity, "fromIdentity"),
		rel.To.Label, identityPattern(rel.To.Identity, "toIdentity"),
		rel.Type)
	params := map[string]any{
		"fromIdentity": rel.From.Identity,
		"toIdentity":   rel.To.Identity,
		"props":        nonNilProps(rel.Props),
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return 0, false, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		// MATCH produced no rows: an endpoint is missing.
		return 0, false, nil
	}
	merged, _ := record.Get("merged")
	if count, ok := merged.(int64); !ok || count == 0 {
		return 0, false, nil
	}

	resultSummary, err := result.Consume(ctx)
	if err != nil {
		return 0, true, err
	}
	return resultSummary.Counters().RelationshipsCreated(), true, nil
}

// identityPattern renders `{key: $param.key, ...}` for a MERGE/MATCH
// pattern, with keys sorted for deterministic query text.
func identityPattern(identity map[string]any, param string) string {
	keys := make([]string, 0, len(identity))
	for k := range identity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: $%s.%s", k, param, k))
	}
	return strings.Join(parts, ", ")
}

// nonNilProps drops nil values so SET += never erases an existing
// property with null. Node attributes accumulate monotonically.
func nonNilProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
