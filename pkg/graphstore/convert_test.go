package graphstore

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/models"
)

func alertNode(id, timestamp string) dbtype.Node {
	return dbtype.Node{
		Labels: []string{"Alert"},
		Props:  map[string]any{"id": id, "timestamp": timestamp, "rule_level": int64(8)},
	}
}

func TestRecordsToEvidence_PathRecord(t *testing.T) {
	path := dbtype.Path{
		Nodes: []dbtype.Node{
			alertNode("a9", "2024-12-15T13:40:00Z"),
			{Labels: []string{"Host"}, Props: map[string]any{"agent_id": "A1", "name": "web-01"}},
		},
		Relationships: []dbtype.Relationship{{Type: "TRIGGERED_ON"}},
	}
	records := []*neo4j.Record{{Keys: []string{"p"}, Values: []any{path}}}

	evidence := recordsToEvidence(records)
	require.Len(t, evidence, 1)

	ev := evidence[0]
	assert.Equal(t, models.SourceGraph, ev.Source)
	assert.Equal(t, "a9", ev.AlertID)
	assert.Equal(t, "2024-12-15T13:40:00Z", ev.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))

	require.NotNil(t, ev.Path)
	require.Len(t, ev.Path.Nodes, 2)
	assert.Equal(t, "Alert", ev.Path.Nodes[0].Type)
	assert.Equal(t, "a9", ev.Path.Nodes[0].ID)
	assert.Equal(t, "Host", ev.Path.Nodes[1].Type)
	assert.Equal(t, "web-01", ev.Path.Nodes[1].ID)
	require.Len(t, ev.Path.Edges, 1)
	assert.Equal(t, "TRIGGERED_ON", ev.Path.Edges[0].Type)
}

func TestRecordsToEvidence_ScalarRecord(t *testing.T) {
	records := []*neo4j.Record{{
		Keys:   []string{"attack_count", "max_rule_level"},
		Values: []any{int64(17), int64(10)},
	}}
	evidence := recordsToEvidence(records)
	require.Len(t, evidence, 1)
	assert.Nil(t, evidence[0].Path)
	assert.Equal(t, int64(17), evidence[0].Fields["attack_count"])
}

func TestRecordsToEvidence_NilColumnsSkipped(t *testing.T) {
	// OPTIONAL MATCH misses surface as nil values.
	records := []*neo4j.Record{{Keys: []string{"activity", "login"}, Values: []any{nil, nil}}}
	assert.Empty(t, recordsToEvidence(records))
}

func TestRecordsToEvidence_MultiplePathColumns(t *testing.T) {
	chain := dbtype.Path{Nodes: []dbtype.Node{{Labels: []string{"Process"}, Props: map[string]any{"name": "bash"}}}}
	link := dbtype.Path{Nodes: []dbtype.Node{alertNode("a3", "2024-12-15T12:00:00Z")}}
	records := []*neo4j.Record{{Keys: []string{"chain", "link"}, Values: []any{chain, link}}}

	evidence := recordsToEvidence(records)
	assert.Len(t, evidence, 2)
}

func TestNodeToGraphNode_IdentityExcludedFromProps(t *testing.T) {
	node := nodeToGraphNode(alertNode("a1", "2024-12-15T12:00:00Z"))
	assert.Equal(t, "a1", node.ID)
	assert.NotContains(t, node.Props, "id")
	assert.Equal(t, "8", node.Props["rule_level"])
}

func TestStringifyProps_DeterministicAndCapped(t *testing.T) {
	props := map[string]any{"z": 1, "a": 2, "m": 3}
	out := stringifyProps(props, "", 2)
	assert.Len(t, out, 2)
	assert.Contains(t, out, "a")
	assert.Contains(t, out, "m")
}
