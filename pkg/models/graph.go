package models

// Knowledge-graph node labels.
const (
	LabelAlert           = "Alert"
	LabelHost            = "Host"
	LabelIPAddress       = "IPAddress"
	LabelUser            = "User"
	LabelProcess         = "Process"
	LabelFile            = "File"
	LabelRule            = "Rule"
	LabelThreatIndicator = "ThreatIndicator"
)

// Knowledge-graph relationship types.
const (
	RelTriggeredOn      = "TRIGGERED_ON"
	RelHasSourceIP      = "HAS_SOURCE_IP"
	RelHasDestIP        = "HAS_DEST_IP"
	RelInvolvesUser     = "INVOLVES_USER"
	RelInvolvesProcess  = "INVOLVES_PROCESS"
	RelAccessesFile     = "ACCESSES_FILE"
	RelMatchedRule      = "MATCHED_RULE"
	RelSimilarTo        = "SIMILAR_TO"
	RelPrecedes         = "PRECEDES"
	RelSpawnedBy        = "SPAWNED_BY"
	RelLoggedInto       = "LOGGED_INTO"
	RelCommunicatesWith = "COMMUNICATES_WITH"
	RelPartOf           = "PART_OF"
)

// Entity is one node to upsert. Identity holds the properties that make
// the node unique for its label; Props accumulate monotonically on merge.
type Entity struct {
	Label    string
	Identity map[string]any
	Props    map[string]any
}

// EntityRef points at a node by label and identity, without properties.
type EntityRef struct {
	Label    string
	Identity map[string]any
}

// Ref returns a reference to this entity's identity.
func (e Entity) Ref() EntityRef {
	return EntityRef{Label: e.Label, Identity: e.Identity}
}

// Relationship is one edge to upsert between two nodes identified by
// reference. An edge whose endpoint cannot be matched is skipped, never
// fatal for the batch.
type Relationship struct {
	Type  string
	From  EntityRef
	To    EntityRef
	Props map[string]any
}

// UpsertSummary reports the outcome of one graph write batch.
type UpsertSummary struct {
	NodesCreated         int
	RelationshipsCreated int
	EdgesSkipped         int
	Persisted            bool
}

// GraphNode is one node in a rendered evidence path.
type GraphNode struct {
	Type  string
	ID    string
	Props map[string]string
}

// GraphEdge is one relationship in a rendered evidence path. Summary is an
// optional short annotation rendered after the type.
type GraphEdge struct {
	Type    string
	Summary string
	Props   map[string]string
}

// GraphPath is a traversal result flattened into an alternating
// node/edge sequence: len(Edges) == len(Nodes)-1.
type GraphPath struct {
	Nodes []GraphNode
	Edges []GraphEdge
}
