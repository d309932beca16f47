package graphstore

import (
	"fmt"
	"sort"
	"sync"
)

// Template is a named, parameterized traversal pattern. Parameters are
// bound by the planner from alert fields; every template carries a hard
// result LIMIT. Timestamps in the graph are RFC3339 UTC strings, so
// lexicographic comparison matches time order.
type Template struct {
	Name   string
	Query  string
	Params []string // required parameter names, for validation and docs
}

// Traversal template names.
const (
	TemplateAttackSourcePanorama     = "attack_source_panorama"
	TemplateLateralMovementDetection = "lateral_movement_detection"
	TemplateProcessExecutionChain    = "process_execution_chain"
	TemplateFileInteractions         = "file_interactions"
	TemplateNetworkTopology          = "network_topology"
	TemplateUserBehavior             = "user_behavior"
	TemplateTemporalCorrelation      = "temporal_correlation"
	TemplateIPReputation             = "ip_reputation"
	TemplateThreatLandscape          = "threat_landscape"
)

// TemplateRegistry holds the named traversals. Read-only after
// construction; safe for concurrent use.
type TemplateRegistry struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// NewTemplateRegistry builds the registry with all built-in traversals.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]*Template)}
	for _, t := range builtinTemplates() {
		r.templates[t.Name] = t
	}
	return r
}

// Get returns a template by name.
func (r *TemplateRegistry) Get(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown graph template %q", name)
	}
	return t, nil
}

// Names returns the registered template names, sorted.
func (r *TemplateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinTemplates() []*Template {
	return []*Template{
		{
			// All alerts from the same source IP in the window, with every
			// outgoing edge except the rule match.
			Name:   TemplateAttackSourcePanorama,
			Params: []string{"srcip", "from", "to"},
			Query: `
MATCH (ip:IPAddress {address: $srcip})<-[:HAS_SOURCE_IP]-(a:Alert)
WHERE a.timestamp >= $from AND a.timestamp <= $to
MATCH p = (a)-[r]->(t)
WHERE type(r) <> 'MATCHED_RULE'
RETURN p
LIMIT 50`,
		},
		{
			// Same user reaching hosts other than the alerting one, bounded
			// to the half hour after the alert.
			Name:   TemplateLateralMovementDetection,
			Params: []string{"username", "agent_id", "from", "to"},
			Query: `
MATCH p = (u:User {username: $username})<-[:INVOLVES_USER]-(a:Alert)-[:TRIGGERED_ON]->(h:Host)
WHERE a.timestamp >= $from AND a.timestamp <= $to
  AND h.agent_id <> $agent_id
RETURN p
LIMIT 50`,
		},
		{
			// Process ancestry up to five hops plus alerts referencing any
			// ancestor inside the window.
			Name:   TemplateProcessExecutionChain,
			Params: []string{"process", "host", "from", "to"},
			Query: `
MATCH chain = (start:Process {name: $process, host: $host})-[:SPAWNED_BY*0..5]->(anc:Process)
OPTIONAL MATCH link = (a:Alert)-[:INVOLVES_PROCESS]->(anc)
WHERE a.timestamp >= $from AND a.timestamp <= $to
RETURN chain, link
LIMIT 50`,
		},
		{
			// Two-hop file / process / alert neighborhood.
			Name:   TemplateFileInteractions,
			Params: []string{"path"},
			Query: `
MATCH p = (f:File {path: $path})<-[:ACCESSES_FILE]-(a:Alert)-[:INVOLVES_PROCESS]->(proc:Process)
RETURN p
LIMIT 50`,
		},
		{
			// Attacker IP neighborhood at depth 1-3 and attacks on those
			// addresses inside the window.
			Name:   TemplateNetworkTopology,
			Params: []string{"srcip", "from", "to"},
			Query: `
MATCH p = (ip:IPAddress {address: $srcip})-[:COMMUNICATES_WITH*1..3]-(other:IPAddress)
OPTIONAL MATCH ap = (x:Alert)-[:HAS_SOURCE_IP|HAS_DEST_IP]->(other)
WHERE x.timestamp >= $from AND x.timestamp <= $to
RETURN p, ap
LIMIT 50`,
		},
		{
			// The user's alerts and logins over the lookback window.
			Name:   TemplateUserBehavior,
			Params: []string{"username", "from"},
			Query: `
MATCH (u:User {username: $username})
OPTIONAL MATCH activity = (u)<-[:INVOLVES_USER]-(a:Alert)
WHERE a.timestamp >= $from
OPTIONAL MATCH login = (u)-[:LOGGED_INTO]->(h:Host)
RETURN activity, login
LIMIT 50`,
		},
		{
			// Alerts on the same host inside the correlation window,
			// excluding the alert under analysis.
			Name:   TemplateTemporalCorrelation,
			Params: []string{"agent_id", "alert_id", "from", "to"},
			Query: `
MATCH p = (h:Host {agent_id: $agent_id})<-[:TRIGGERED_ON]-(a:Alert)
WHERE a.timestamp >= $from AND a.timestamp <= $to
  AND a.id <> $alert_id
RETURN p
ORDER BY a.timestamp
LIMIT 50`,
		},
		{
			// The IP node plus its attack history counts.
			Name:   TemplateIPReputation,
			Params: []string{"address"},
			Query: `
MATCH (ip:IPAddress {address: $address})
OPTIONAL MATCH (ip)<-[:HAS_SOURCE_IP]-(a:Alert)
RETURN ip, count(a) AS attack_count, max(a.rule_level) AS max_rule_level
LIMIT 50`,
		},
		{
			// High-severity alerts in the lookback that share any entity
			// with the alert under analysis.
			Name:   TemplateThreatLandscape,
			Params: []string{"alert_id", "from"},
			Query: `
MATCH p = (cur:Alert {id: $alert_id})-[]->(e)<-[]-(other:Alert)
WHERE other.rule_level >= 7
  AND other.timestamp >= $from
  AND other.id <> $alert_id
RETURN DISTINCT p
LIMIT 50`,
		},
	}
}
