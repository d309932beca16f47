// Package planner is the decision engine: it inspects one alert and
// produces the retrieval plan the hybrid retriever executes. Planning is
// a pure function of the alert; the planner never touches the stores.
package planner

import (
	"time"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/graphstore"
	"github.com/codeready-toolchain/argus/pkg/models"
)

// Planner derives retrieval plans from alert features.
type Planner struct {
	k         int
	resultCap int
}

// New builds a planner with the retrieval tuning knobs.
func New(cfg config.RetrievalConfig) *Planner {
	return &Planner{k: cfg.K, resultCap: cfg.ResultCap}
}

// Plan evaluates every planning rule independently against the alert and
// returns the tasks sorted critical-first. Any well-formed alert yields
// at least the k-NN task.
func (p *Planner) Plan(alert *models.Alert) models.Plan {
	plan := models.Plan{}
	ts := alert.Timestamp

	// Similar-alert search runs for every alert.
	plan.Tasks = append(plan.Tasks, models.RetrievalTask{
		Kind:     models.TaskVectorKNN,
		Priority: models.PriorityHigh,
		Slot:     models.SlotSimilarAlerts,
		Vector:   &models.VectorParams{K: p.k},
	})

	host := alert.HostName()

	if isResourceAlert(alert) && host != "" {
		plan.Tasks = append(plan.Tasks,
			p.keywordTask(models.SlotProcessData, models.PriorityMedium, host, ts, 5*time.Minute,
				"process", "cpu", "usage"),
			p.keywordTask(models.SlotHostMetrics, models.PriorityMedium, host, ts, 5*time.Minute,
				"memory", "ram", "usage"),
		)
	}

	if isSecurityEvent(alert) && host != "" {
		plan.Tasks = append(plan.Tasks,
			p.keywordTask(models.SlotHostMetrics, models.PriorityHigh, host, ts, time.Minute,
				"cpu", "load", "usage"),
			p.keywordTask(models.SlotNetworkLogs, models.PriorityHigh, host, ts, time.Minute,
				"network", "connection", "traffic"),
			p.keywordTask(models.SlotProtocolLogs, models.PriorityHigh, host, ts, time.Minute,
				"user", "login", "session"),
		)
	}

	srcip := alert.SourceIP()
	username := alert.Username()
	agentID := agentID(alert)

	if isSSHAlert(alert) {
		if srcip != "" {
			plan.Tasks = append(plan.Tasks, cypherTask(
				graphstore.TemplateAttackSourcePanorama, models.PriorityCritical, models.SlotAttackPaths,
				map[string]any{
					"srcip": srcip,
					"from":  graphTime(ts.Add(-time.Hour)),
					"to":    graphTime(ts.Add(time.Hour)),
				}))
		}
		if username != "" && agentID != "" {
			plan.Tasks = append(plan.Tasks, cypherTask(
				graphstore.TemplateLateralMovementDetection, models.PriorityHigh, models.SlotLateralMovement,
				map[string]any{
					"username": username,
					"agent_id": agentID,
					"from":     graphTime(ts),
					"to":       graphTime(ts.Add(30 * time.Minute)),
				}))
		}
	}

	if isMalwareAlert(alert) {
		if process := alert.ProcessName(); process != "" && host != "" {
			plan.Tasks = append(plan.Tasks, cypherTask(
				graphstore.TemplateProcessExecutionChain, models.PriorityCritical, models.SlotProcessChains,
				map[string]any{
					"process": process,
					"host":    host,
					"from":    graphTime(ts.Add(-2 * time.Hour)),
					"to":      graphTime(ts.Add(2 * time.Hour)),
				}))
		}
		if path := alert.FilePath(); path != "" {
			plan.Tasks = append(plan.Tasks, cypherTask(
				graphstore.TemplateFileInteractions, models.PriorityHigh, models.SlotFileInteractions,
				map[string]any{"path": path}))
		}
	}

	if isWebAttackAlert(alert) && srcip != "" {
		plan.Tasks = append(plan.Tasks, cypherTask(
			graphstore.TemplateNetworkTopology, models.PriorityHigh, models.SlotNetworkTopology,
			map[string]any{
				"srcip": srcip,
				"from":  graphTime(ts.Add(-6 * time.Hour)),
				"to":    graphTime(ts.Add(6 * time.Hour)),
			}))
	}

	if isAuthAlert(alert) && username != "" {
		plan.Tasks = append(plan.Tasks, cypherTask(
			graphstore.TemplateUserBehavior, models.PriorityMedium, models.SlotUserBehavior,
			map[string]any{
				"username": username,
				"from":     graphTime(ts.Add(-7 * 24 * time.Hour)),
			}))
	}

	// Temporal correlation runs for every alert with a host identity.
	if agentID != "" {
		plan.Tasks = append(plan.Tasks, cypherTask(
			graphstore.TemplateTemporalCorrelation, models.PriorityMedium, models.SlotTemporalSequences,
			map[string]any{
				"agent_id": agentID,
				"alert_id": alert.ID,
				"from":     graphTime(ts.Add(-30 * time.Minute)),
				"to":       graphTime(ts.Add(30 * time.Minute)),
			}))
	}

	if srcip != "" && !models.IsInternalIP(srcip) {
		plan.Tasks = append(plan.Tasks, cypherTask(
			graphstore.TemplateIPReputation, models.PriorityMedium, models.SlotIPReputation,
			map[string]any{"address": srcip}))
	}

	if alert.Rule != nil && alert.Rule.Level >= 8 {
		plan.Tasks = append(plan.Tasks, cypherTask(
			graphstore.TemplateThreatLandscape, models.PriorityMedium, models.SlotThreatLandscape,
			map[string]any{
				"alert_id": alert.ID,
				"from":     graphTime(ts.Add(-24 * time.Hour)),
			}))
	}

	plan.SortByPriority()
	return plan
}

func (p *Planner) keywordTask(slot models.Slot, priority models.Priority, host string, ts time.Time, window time.Duration, keywords ...string) models.RetrievalTask {
	return models.RetrievalTask{
		Kind:     models.TaskKeywordTimeWindow,
		Priority: priority,
		Slot:     slot,
		Keyword: &models.KeywordParams{
			Keywords: keywords,
			Host:     host,
			From:     ts.Add(-window),
			To:       ts.Add(window),
			Size:     p.resultCap,
		},
	}
}

func cypherTask(template string, priority models.Priority, slot models.Slot, params map[string]any) models.RetrievalTask {
	return models.RetrievalTask{
		Kind:     models.TaskCypherTemplate,
		Priority: priority,
		Slot:     slot,
		Cypher:   &models.CypherParams{Template: template, Params: params},
	}
}

func agentID(alert *models.Alert) string {
	if alert.Agent == nil {
		return ""
	}
	if alert.Agent.ID != "" {
		return alert.Agent.ID
	}
	return alert.Agent.Name
}

// graphTime renders a timestamp the way the graph stores them: RFC3339
// in UTC, so string comparison matches time order.
func graphTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
