package models

import "time"

// Risk levels extracted from triage reports. RiskUnknown marks alerts whose
// analysis failed or whose report carried no recognizable level.
const (
	RiskCritical      = "critical"
	RiskHigh          = "high"
	RiskMedium        = "medium"
	RiskLow           = "low"
	RiskInformational = "informational"
	RiskUnknown       = "unknown"
)

// Stage markers recording how far the pipeline got before writing back.
const (
	StageCompleted      = "completed"
	StageAnalysisFailed = "analysis_failed"
	StageUnprocessable  = "unprocessable"
)

// PlanSummary records which retrieval task kinds a plan used and how many
// of each, for the enrichment written back onto the alert.
type PlanSummary struct {
	TaskCounts map[string]int `json:"task_counts"`
	TotalTasks int            `json:"total_tasks"`
}

// GraphStats summarizes the knowledge-graph write for one alert.
type GraphStats struct {
	EntitiesCreated      int  `json:"entities_created"`
	RelationshipsCreated int  `json:"relationships_created"`
	EdgesSkipped         int  `json:"edges_skipped"`
	Persisted            bool `json:"persisted"`
}

// AIAnalysis is the triage enrichment written back onto an alert. Its
// presence marks the alert processed; the scheduler never reselects it.
type AIAnalysis struct {
	ReportText   string      `json:"report_text"`
	ProviderID   string      `json:"provider_id"`
	Timestamp    time.Time   `json:"timestamp"`
	RiskLevel    string      `json:"risk_level"`
	PlanSummary  PlanSummary `json:"plan_summary"`
	GraphStats   GraphStats  `json:"graph_stats"`
	ProcessingMS int64       `json:"processing_ms"`
	StageMarker  string      `json:"stage_marker"`
}
