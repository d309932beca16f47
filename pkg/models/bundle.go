package models

import "time"

// Slot names one evidence list in the context bundle. Slots are a closed
// set; writing to an unrecognized slot is a programming error, not data.
type Slot string

// Recognized context bundle slots.
const (
	SlotSimilarAlerts Slot = "similar_alerts"

	SlotAttackPaths       Slot = "attack_paths"
	SlotLateralMovement   Slot = "lateral_movement"
	SlotTemporalSequences Slot = "temporal_sequences"
	SlotIPReputation      Slot = "ip_reputation"
	SlotUserBehavior      Slot = "user_behavior"
	SlotProcessChains     Slot = "process_chains"
	SlotFileInteractions  Slot = "file_interactions"
	SlotNetworkTopology   Slot = "network_topology"
	SlotThreatLandscape   Slot = "threat_landscape"

	SlotHostMetrics  Slot = "host_metrics"
	SlotProcessData  Slot = "process_data"
	SlotNetworkLogs  Slot = "network_logs"
	SlotProtocolLogs Slot = "protocol_logs"
)

// graphSlots are the slots populated from graph traversals.
var graphSlots = map[Slot]bool{
	SlotAttackPaths:       true,
	SlotLateralMovement:   true,
	SlotTemporalSequences: true,
	SlotIPReputation:      true,
	SlotUserBehavior:      true,
	SlotProcessChains:     true,
	SlotFileInteractions:  true,
	SlotNetworkTopology:   true,
	SlotThreatLandscape:   true,
}

// IsGraphSlot reports whether a slot holds graph-traversal evidence.
func IsGraphSlot(s Slot) bool { return graphSlots[s] }

// Evidence is one retrieved record. Source tags where it came from; Score
// carries similarity or relevance when the source provides one. Graph
// evidence additionally carries a Path; document evidence carries Fields.
type Evidence struct {
	Source    string         // "vector", "keyword" or "graph"
	AlertID   string         // id of the referenced historical alert, if any
	Score     float64
	Timestamp time.Time
	Fields    map[string]any
	Path      *GraphPath
}

// Evidence source tags.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
	SourceGraph   = "graph"
)

// ContextBundle maps slots to retrieved evidence for one alert. Records
// are held by value; cross-alert references are id strings, never object
// graphs.
type ContextBundle struct {
	Slots    map[Slot][]Evidence
	Failures map[Slot]string
}

// NewContextBundle returns an empty bundle.
func NewContextBundle() *ContextBundle {
	return &ContextBundle{
		Slots:    make(map[Slot][]Evidence),
		Failures: make(map[Slot]string),
	}
}

// Add appends evidence to a slot, capping the slot at limit records.
// A limit of zero or less means unbounded.
func (b *ContextBundle) Add(slot Slot, limit int, records ...Evidence) {
	existing := b.Slots[slot]
	for _, r := range records {
		if limit > 0 && len(existing) >= limit {
			break
		}
		existing = append(existing, r)
	}
	b.Slots[slot] = existing
}

// MarkFailed records a per-task failure against a slot. The slot stays
// empty; retrieval never propagates task errors.
func (b *ContextBundle) MarkFailed(slot Slot, reason string) {
	b.Failures[slot] = reason
	if _, ok := b.Slots[slot]; !ok {
		b.Slots[slot] = nil
	}
}

// GraphHitCount totals records across all graph-sourced slots.
func (b *ContextBundle) GraphHitCount() int {
	n := 0
	for slot, records := range b.Slots {
		if IsGraphSlot(slot) {
			n += len(records)
		}
	}
	return n
}

// Get returns the records in a slot.
func (b *ContextBundle) Get(slot Slot) []Evidence { return b.Slots[slot] }
