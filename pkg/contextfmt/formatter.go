// Package contextfmt renders context bundles into the string slots the
// prompt templates consume, including the Cypher-path notation for graph
// evidence. Formatting is pure: it cannot fail and touches no stores.
package contextfmt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// Rendering caps.
const (
	// reportExcerptChars truncates prior triage reports per record.
	reportExcerptChars = 400
	// graphBlockChars caps the total rendered graph block.
	graphBlockChars = 4000
	// fallbackPathLines caps synthesized degenerate paths.
	fallbackPathLines = 10
)

// graphPresenceSlots decide template selection: the graph-aware prompt
// is used when any of these hold evidence.
var graphPresenceSlots = []models.Slot{
	models.SlotAttackPaths,
	models.SlotLateralMovement,
	models.SlotTemporalSequences,
	models.SlotProcessChains,
}

// slotHeaders name the analysis dimension of each graph slot in the
// rendered block.
var slotHeaders = map[models.Slot]string{
	models.SlotAttackPaths:       "Attack source panorama",
	models.SlotLateralMovement:   "Lateral movement",
	models.SlotTemporalSequences: "Temporal sequence",
	models.SlotIPReputation:      "IP reputation",
	models.SlotUserBehavior:      "User behavior",
	models.SlotProcessChains:     "Process execution chains",
	models.SlotFileInteractions:  "File interactions",
	models.SlotNetworkTopology:   "Network topology",
	models.SlotThreatLandscape:   "Threat landscape",
}

// graphSlotOrder fixes the rendering order of the graph block.
var graphSlotOrder = []models.Slot{
	models.SlotAttackPaths,
	models.SlotLateralMovement,
	models.SlotProcessChains,
	models.SlotTemporalSequences,
	models.SlotFileInteractions,
	models.SlotNetworkTopology,
	models.SlotUserBehavior,
	models.SlotIPReputation,
	models.SlotThreatLandscape,
}

// FormattedContext carries the rendered prompt slots.
type FormattedContext struct {
	// GraphPresent selects the graph-aware prompt template.
	GraphPresent bool

	// GraphContext is the rendered Cypher-path block, empty when
	// GraphPresent is false and no fallback could be synthesized.
	GraphContext string

	// Plain template slots.
	SimilarAlerts string
	SystemMetrics string
	ProcessData   string
	NetworkLogs   string
	Additional    string
}

// Format renders the bundle. When graph evidence is absent but document
// evidence carries graph-shaped fields, degenerate one-hop paths are
// synthesized so the model still receives structured context.
func Format(bundle *models.ContextBundle) *FormattedContext {
	out := &FormattedContext{
		SimilarAlerts: renderDocSlot("Similar historical alerts", bundle.Get(models.SlotSimilarAlerts), true),
		SystemMetrics: renderDocSlot("System metrics", bundle.Get(models.SlotHostMetrics), false),
		ProcessData:   renderDocSlot("Process activity", bundle.Get(models.SlotProcessData), false),
		NetworkLogs:   renderDocSlot("Network activity", bundle.Get(models.SlotNetworkLogs), false),
		Additional:    renderDocSlot("Protocol activity", bundle.Get(models.SlotProtocolLogs), false),
	}

	for _, slot := range graphPresenceSlots {
		if len(bundle.Get(slot)) > 0 {
			out.GraphPresent = true
			break
		}
	}

	if out.GraphPresent {
		out.GraphContext = renderGraphBlock(bundle)
	} else {
		out.GraphContext = synthesizeFallbackPaths(bundle)
	}
	return out
}

// renderDocSlot renders document evidence as a bulleted block.
func renderDocSlot(header string, records []models.Evidence, withReports bool) string {
	if len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", header)
	for _, record := range records {
		sb.WriteString("- ")
		sb.WriteString(describeRecord(record))
		sb.WriteString("\n")
		if !withReports {
			continue
		}
		if report, ok := record.Fields["report_text"].(string); ok && report != "" {
			excerpt := report
			if len(excerpt) > reportExcerptChars {
				excerpt = excerpt[:reportExcerptChars] + "…"
			}
			fmt.Fprintf(&sb, "  Prior analysis: %s\n", excerpt)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describeRecord(record models.Evidence) string {
	parts := []string{}
	if desc, ok := record.Fields["rule_description"].(string); ok && desc != "" {
		parts = append(parts, desc)
	}
	if agent, ok := record.Fields["agent_name"].(string); ok && agent != "" {
		parts = append(parts, "host "+agent)
	}
	if !record.Timestamp.IsZero() {
		parts = append(parts, record.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	}
	if record.Source == models.SourceVector {
		parts = append(parts, fmt.Sprintf("similarity %.2f", record.Score))
	}
	if risk, ok := record.Fields["risk_level"].(string); ok && risk != "" {
		parts = append(parts, "prior risk "+risk)
	}
	if len(parts) == 0 {
		return describeFields(record.Fields)
	}
	return strings.Join(parts, ", ")
}

// describeFields renders leftover scalar fields deterministically.
func describeFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}

// renderGraphBlock renders every populated graph slot under its header,
// capping the whole block with an explicit truncation marker.
func renderGraphBlock(bundle *models.ContextBundle) string {
	var sb strings.Builder
	truncated := false

	for _, slot := range graphSlotOrder {
		records := bundle.Get(slot)
		if len(records) == 0 {
			continue
		}
		block := renderGraphSlot(slotHeaders[slot], records)
		if sb.Len()+len(block) > graphBlockChars {
			remaining := graphBlockChars - sb.Len()
			if remaining > 0 {
				sb.WriteString(block[:remaining])
			}
			truncated = true
			break
		}
		sb.WriteString(block)
	}

	out := strings.TrimRight(sb.String(), "\n")
	if truncated {
		out += "\n[graph context truncated]"
	}
	return out
}

func renderGraphSlot(header string, records []models.Evidence) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n", header)
	for _, record := range records {
		if record.Path != nil && len(record.Path.Nodes) > 0 {
			sb.WriteString(RenderPath(record.Path))
			sb.WriteString("\n")
			continue
		}
		if len(record.Fields) > 0 {
			sb.WriteString("- ")
			sb.WriteString(describeFields(record.Fields))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// synthesizeFallbackPaths builds degenerate one-hop paths from document
// evidence that carries graph-shaped fields, so a graph-less bundle still
// yields some structured context.
func synthesizeFallbackPaths(bundle *models.ContextBundle) string {
	var lines []string
	for _, record := range bundle.Get(models.SlotSimilarAlerts) {
		if len(lines) >= fallbackPathLines {
			break
		}
		alertID := record.AlertID
		if alertID == "" {
			continue
		}
		if srcip, ok := record.Fields["srcip"].(string); ok && srcip != "" {
			lines = append(lines, RenderPath(&models.GraphPath{
				Nodes: []models.GraphNode{
					{Type: models.LabelAlert, ID: alertID},
					{Type: models.LabelIPAddress, ID: srcip},
				},
				Edges: []models.GraphEdge{{Type: models.RelHasSourceIP}},
			}))
		}
		if len(lines) >= fallbackPathLines {
			break
		}
		if user, ok := record.Fields["user"].(string); ok && user != "" {
			lines = append(lines, RenderPath(&models.GraphPath{
				Nodes: []models.GraphNode{
					{Type: models.LabelAlert, ID: alertID},
					{Type: models.LabelUser, ID: user},
				},
				Edges: []models.GraphEdge{{Type: models.RelInvolvesUser}},
			}))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "## Related entities\n" + strings.Join(lines, "\n")
}
