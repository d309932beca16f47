package graphstore

import (
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// identityProps maps each node label to the property that names it in
// rendered paths.
var identityProps = map[string]string{
	models.LabelAlert:           "id",
	models.LabelHost:            "name",
	models.LabelIPAddress:       "address",
	models.LabelUser:            "username",
	models.LabelProcess:         "name",
	models.LabelFile:            "path",
	models.LabelRule:            "id",
	models.LabelThreatIndicator: "value",
}

// maxRenderedProps bounds how many node properties survive into the
// prompt rendering.
const maxRenderedProps = 6

// recordsToEvidence flattens driver records into evidence. Path values
// become one evidence record each; scalar-only records become a single
// evidence record carrying the columns as fields.
func recordsToEvidence(records []*neo4j.Record) []models.Evidence {
	var out []models.Evidence
	for _, record := range records {
		fields := map[string]any{}
		pathsInRecord := 0

		for i, value := range record.Values {
			key := record.Keys[i]
			switch v := value.(type) {
			case dbtype.Path:
				ev := pathEvidence(pathToGraphPath(v))
				out = append(out, ev)
				pathsInRecord++
			case dbtype.Node:
				path := &models.GraphPath{Nodes: []models.GraphNode{nodeToGraphNode(v)}}
				out = append(out, pathEvidence(path))
				pathsInRecord++
			case nil:
				// OPTIONAL MATCH misses surface as nil columns.
			default:
				fields[key] = v
			}
		}

		if pathsInRecord == 0 && len(fields) > 0 {
			out = append(out, models.Evidence{Source: models.SourceGraph, Fields: fields})
		} else if pathsInRecord > 0 && len(fields) > 0 {
			// Attach scalar columns to the last path from this record.
			out[len(out)-1].Fields = fields
		}
	}
	return out
}

func pathEvidence(path *models.GraphPath) models.Evidence {
	ev := models.Evidence{Source: models.SourceGraph, Path: path, Fields: map[string]any{}}
	for _, node := range path.Nodes {
		if node.Type != models.LabelAlert {
			continue
		}
		ev.AlertID = node.ID
		if ts, ok := node.Props["timestamp"]; ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				ev.Timestamp = parsed
			}
		}
		break
	}
	return ev
}

func pathToGraphPath(p dbtype.Path) *models.GraphPath {
	out := &models.GraphPath{}
	for _, node := range p.Nodes {
		out.Nodes = append(out.Nodes, nodeToGraphNode(node))
	}
	for _, rel := range p.Relationships {
		out.Edges = append(out.Edges, models.GraphEdge{
			Type:  rel.Type,
			Props: stringifyProps(rel.Props, "", maxRenderedProps),
		})
	}
	return out
}

func nodeToGraphNode(n dbtype.Node) models.GraphNode {
	label := "Node"
	if len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	idProp := identityProps[label]

	id := ""
	if idProp != "" {
		if v, ok := n.Props[idProp]; ok {
			id = fmt.Sprintf("%v", v)
		}
	}
	if id == "" {
		id = n.ElementId
	}

	return models.GraphNode{
		Type:  label,
		ID:    id,
		Props: stringifyProps(n.Props, idProp, maxRenderedProps),
	}
}

// stringifyProps converts property values to strings for rendering,
// excluding the identity property and capping the count. Keys are chosen
// in sorted order so rendering is deterministic.
func stringifyProps(props map[string]any, exclude string, limit int) map[string]string {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == exclude {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string)
	for _, k := range keys {
		if len(out) >= limit {
			break
		}
		out[k] = fmt.Sprintf("%v", props[k])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
