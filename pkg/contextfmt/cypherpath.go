package contextfmt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// Cypher-path notation is the flat text rendering of graph evidence the
// prompt embeds:
//
//	line := node ( ' ' edge ' ' node )+
//	node := '(' type ':' id ( ' {' kvlist '}' )? ')'
//	edge := '-[' rel_type ( ': ' summary )? ( ' {' kvlist '}' )? ']->'
//
// Example: (IP:203.0.113.45) -[FAILED_LOGIN: 127x]-> (Host:web-server-01)

// RenderPath renders one path as a single line. Property keys render in
// sorted order so output is deterministic.
func RenderPath(path *models.GraphPath) string {
	if path == nil || len(path.Nodes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(renderNode(path.Nodes[0]))
	for i, edge := range path.Edges {
		if i+1 >= len(path.Nodes) {
			break
		}
		sb.WriteString(" ")
		sb.WriteString(renderEdge(edge))
		sb.WriteString(" ")
		sb.WriteString(renderNode(path.Nodes[i+1]))
	}
	return sb.String()
}

func renderNode(node models.GraphNode) string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(node.Type)
	sb.WriteString(":")
	sb.WriteString(node.ID)
	if kv := renderKVList(node.Props); kv != "" {
		sb.WriteString(" {")
		sb.WriteString(kv)
		sb.WriteString("}")
	}
	sb.WriteString(")")
	return sb.String()
}

func renderEdge(edge models.GraphEdge) string {
	var sb strings.Builder
	sb.WriteString("-[")
	sb.WriteString(edge.Type)
	if edge.Summary != "" {
		sb.WriteString(": ")
		sb.WriteString(edge.Summary)
	}
	if kv := renderKVList(edge.Props); kv != "" {
		sb.WriteString(" {")
		sb.WriteString(kv)
		sb.WriteString("}")
	}
	sb.WriteString("]->")
	return sb.String()
}

func renderKVList(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+props[k])
	}
	return strings.Join(parts, ",")
}

// ParsePath is the inverse of RenderPath. It exists so rendered evidence
// stays machine-checkable; round-tripping a rendered path yields an
// equal value.
func ParsePath(line string) (*models.GraphPath, error) {
	p := &pathParser{input: line}
	return p.parse()
}

type pathParser struct {
	input string
	pos   int
}

func (p *pathParser) parse() (*models.GraphPath, error) {
	path := &models.GraphPath{}

	node, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	path.Nodes = append(path.Nodes, node)

	for p.pos < len(p.input) {
		if err := p.expect(" "); err != nil {
			return nil, err
		}
		edge, err := p.parseEdge()
		if err != nil {
			return nil, err
		}
		if err := p.expect(" "); err != nil {
			return nil, err
		}
		node, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		path.Edges = append(path.Edges, edge)
		path.Nodes = append(path.Nodes, node)
	}
	return path, nil
}

func (p *pathParser) parseNode() (models.GraphNode, error) {
	var node models.GraphNode
	if err := p.expect("("); err != nil {
		return node, err
	}
	node.Type = p.until(":")
	if err := p.expect(":"); err != nil {
		return node, err
	}
	node.ID = p.untilAny(" {", ")")
	if strings.HasPrefix(p.rest(), " {") {
		p.pos += 2
		props, err := p.parseKVList("}")
		if err != nil {
			return node, err
		}
		node.Props = props
		if err := p.expect("}"); err != nil {
			return node, err
		}
	}
	if err := p.expect(")"); err != nil {
		return node, err
	}
	return node, nil
}

func (p *pathParser) parseEdge() (models.GraphEdge, error) {
	var edge models.GraphEdge
	if err := p.expect("-["); err != nil {
		return edge, err
	}
	edge.Type = p.untilAny(": ", " {", "]->")
	if strings.HasPrefix(p.rest(), ": ") {
		p.pos += 2
		edge.Summary = p.untilAny(" {", "]->")
	}
	if strings.HasPrefix(p.rest(), " {") {
		p.pos += 2
		props, err := p.parseKVList("}")
		if err != nil {
			return edge, err
		}
		edge.Props = props
		if err := p.expect("}"); err != nil {
			return edge, err
		}
	}
	if err := p.expect("]->"); err != nil {
		return edge, err
	}
	return edge, nil
}

func (p *pathParser) parseKVList(terminator string) (map[string]string, error) {
	props := map[string]string{}
	for {
		key := p.until("=")
		if err := p.expect("="); err != nil {
			return nil, err
		}
		value := p.untilAny(",", terminator)
		props[key] = value
		if !strings.HasPrefix(p.rest(), ",") {
			break
		}
		p.pos++
	}
	if len(props) == 0 {
		return nil, nil
	}
	return props, nil
}

func (p *pathParser) rest() string { return p.input[p.pos:] }

func (p *pathParser) expect(s string) error {
	if !strings.HasPrefix(p.rest(), s) {
		return fmt.Errorf("cypher path: expected %q at offset %d in %q", s, p.pos, p.input)
	}
	p.pos += len(s)
	return nil
}

// until consumes up to (not including) the next occurrence of sep.
func (p *pathParser) until(sep string) string {
	idx := strings.Index(p.rest(), sep)
	if idx < 0 {
		out := p.rest()
		p.pos = len(p.input)
		return out
	}
	out := p.rest()[:idx]
	p.pos += idx
	return out
}

// untilAny consumes up to the earliest of the given separators.
func (p *pathParser) untilAny(seps ...string) string {
	rest := p.rest()
	cut := len(rest)
	for _, sep := range seps {
		if idx := strings.Index(rest, sep); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	out := rest[:cut]
	p.pos += cut
	return out
}
