// Package persister grows the threat knowledge graph from processed
// alerts: it extracts entities and relationships from the alert, its
// retrieved context, and the triage report, then upserts them
// idempotently.
package persister

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// IoC extraction patterns. Indicators are pulled from the report text
// with a deliberately small regex set; the closed TLD list keeps
// hostnames like web-server-01.internal out of the indicator set.
var (
	iocIPPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	iocHashPattern   = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b|\b[a-fA-F0-9]{40}\b|\b[a-fA-F0-9]{32}\b`)
	iocDomainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9][a-zA-Z0-9-]{0,62}\.)+(?:com|net|org|io|info|biz|xyz|top|ru|cn)\b`)
)

// Indicator kinds.
const (
	indicatorIP     = "ip"
	indicatorHash   = "hash"
	indicatorDomain = "domain"
)

// Extraction carries the graph write set for one alert.
type Extraction struct {
	Entities      []models.Entity
	Relationships []models.Relationship
}

// Extract builds the write set. Every step is gated on its required
// fields: a missing field suppresses that entity or edge, it never fails
// the extraction.
func Extract(alert *models.Alert, bundle *models.ContextBundle, riskLevel, reportText string, similarityThreshold float64, correlationWindow time.Duration) *Extraction {
	ex := &Extraction{}
	ts := graphTime(alert.Timestamp)

	alertRef := models.EntityRef{
		Label:    models.LabelAlert,
		Identity: map[string]any{"id": alert.ID},
	}

	alertProps := map[string]any{
		"timestamp":  ts,
		"risk_level": riskLevel,
	}
	if alert.Rule != nil {
		alertProps["rule_id"] = string(alert.Rule.ID)
		alertProps["rule_level"] = alert.Rule.Level
	}
	ex.addEntity(models.LabelAlert, alertRef.Identity, alertProps)

	if alert.Agent != nil && agentIdentity(alert) != "" {
		hostRef := ex.addEntity(models.LabelHost,
			map[string]any{"agent_id": agentIdentity(alert)},
			map[string]any{"name": alert.Agent.Name, "ip": alert.Agent.IP})
		ex.addEdge(models.RelTriggeredOn, alertRef, hostRef, nil)
	}

	if srcip := alert.SourceIP(); srcip != "" {
		ipRef := ex.addEntity(models.LabelIPAddress,
			map[string]any{"address": srcip},
			map[string]any{"is_internal": models.IsInternalIP(srcip)})
		ex.addEdge(models.RelHasSourceIP, alertRef, ipRef, nil)
	}
	if dstip := alert.DestIP(); dstip != "" {
		ipRef := ex.addEntity(models.LabelIPAddress,
			map[string]any{"address": dstip},
			map[string]any{"is_internal": models.IsInternalIP(dstip)})
		ex.addEdge(models.RelHasDestIP, alertRef, ipRef, nil)
	}

	if user := alert.Username(); user != "" {
		userRef := ex.addEntity(models.LabelUser,
			map[string]any{"username": user}, nil)
		ex.addEdge(models.RelInvolvesUser, alertRef, userRef, nil)

		// A user seen on a host implies a login edge for later lateral
		// movement traversals.
		if agentIdentity(alert) != "" {
			ex.addEdge(models.RelLoggedInto, userRef,
				models.EntityRef{Label: models.LabelHost, Identity: map[string]any{"agent_id": agentIdentity(alert)}},
				nil)
		}
	}

	if process := alert.ProcessName(); process != "" && alert.HostName() != "" {
		procRef := ex.addEntity(models.LabelProcess,
			map[string]any{"name": process, "host": alert.HostName()},
			map[string]any{"pid": alert.DataField("pid"), "command_line": alert.DataField("command")})
		ex.addEdge(models.RelInvolvesProcess, alertRef, procRef, nil)
	}

	if path := alert.FilePath(); path != "" {
		fileRef := ex.addEntity(models.LabelFile,
			map[string]any{"path": path},
			map[string]any{"name": baseName(path), "hash": alert.DataField("md5"), "size": alert.DataField("size")})
		ex.addEdge(models.RelAccessesFile, alertRef, fileRef, nil)
	}

	if alert.Rule != nil && alert.Rule.ID != "" {
		ruleRef := ex.addEntity(models.LabelRule,
			map[string]any{"id": string(alert.Rule.ID)},
			map[string]any{"description": alert.Rule.Description, "level": alert.Rule.Level})
		ex.addEdge(models.RelMatchedRule, alertRef, ruleRef, nil)
	}

	// A source and a destination IP on one alert imply a communication edge for the
	// network topology traversal.
	if srcip, dstip := alert.SourceIP(), alert.DestIP(); srcip != "" && dstip != "" && srcip != dstip {
		ex.addEdge(models.RelCommunicatesWith,
			models.EntityRef{Label: models.LabelIPAddress, Identity: map[string]any{"address": srcip}},
			models.EntityRef{Label: models.LabelIPAddress, Identity: map[string]any{"address": dstip}},
			nil)
	}

	ex.similarEdges(alertRef, bundle, similarityThreshold)
	ex.precedesEdges(alert, alertRef, bundle, correlationWindow)
	ex.indicators(alertRef, reportText)

	return ex
}

// similarEdges links the alert to vector neighbors above the similarity
// threshold. The edge is undirected in meaning; storage keeps one
// arbitrary orientation, current alert first.
func (ex *Extraction) similarEdges(alertRef models.EntityRef, bundle *models.ContextBundle, threshold float64) {
	for _, record := range bundle.Get(models.SlotSimilarAlerts) {
		if record.AlertID == "" || record.Score < threshold {
			continue
		}
		ex.addEdge(models.RelSimilarTo, alertRef,
			models.EntityRef{Label: models.LabelAlert, Identity: map[string]any{"id": record.AlertID}},
			map[string]any{"score": record.Score})
	}
}

// precedesEdges links temporally adjacent alerts on the same host,
// oriented earliest to latest, when the gap fits the correlation window.
func (ex *Extraction) precedesEdges(alert *models.Alert, alertRef models.EntityRef, bundle *models.ContextBundle, window time.Duration) {
	for _, record := range bundle.Get(models.SlotTemporalSequences) {
		if record.AlertID == "" || record.AlertID == alert.ID || record.Timestamp.IsZero() {
			continue
		}
		gap := alert.Timestamp.Sub(record.Timestamp)
		gapSeconds := math.Abs(gap.Seconds())
		if gapSeconds > window.Seconds() {
			continue
		}

		otherRef := models.EntityRef{Label: models.LabelAlert, Identity: map[string]any{"id": record.AlertID}}
		props := map[string]any{"time_gap_seconds": int64(gapSeconds)}
		if gap > 0 {
			// The retrieved alert is earlier.
			ex.addEdge(models.RelPrecedes, otherRef, alertRef, props)
		} else {
			ex.addEdge(models.RelPrecedes, alertRef, otherRef, props)
		}
	}
}

// indicators extracts IoCs from the report text and attaches each to the
// alert once.
func (ex *Extraction) indicators(alertRef models.EntityRef, reportText string) {
	seen := map[string]bool{}
	add := func(kind, value string) {
		key := kind + ":" + value
		if seen[key] {
			return
		}
		seen[key] = true
		ref := ex.addEntity(models.LabelThreatIndicator,
			map[string]any{"value": value, "kind": kind}, nil)
		ex.addEdge(models.RelPartOf, ref, alertRef, nil)
	}

	for _, value := range iocIPPattern.FindAllString(reportText, -1) {
		add(indicatorIP, value)
	}
	for _, value := range iocHashPattern.FindAllString(reportText, -1) {
		add(indicatorHash, strings.ToLower(value))
	}
	for _, value := range iocDomainPattern.FindAllString(reportText, -1) {
		add(indicatorDomain, strings.ToLower(value))
	}
}

func (ex *Extraction) addEntity(label string, identity, props map[string]any) models.EntityRef {
	entity := models.Entity{Label: label, Identity: identity, Props: cleanProps(props)}
	ex.Entities = append(ex.Entities, entity)
	return entity.Ref()
}

func (ex *Extraction) addEdge(relType string, from, to models.EntityRef, props map[string]any) {
	ex.Relationships = append(ex.Relationships, models.Relationship{
		Type: relType, From: from, To: to, Props: props,
	})
}

// cleanProps drops empty strings so merges never overwrite accumulated
// attributes with blanks.
func cleanProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func agentIdentity(alert *models.Alert) string {
	if alert.Agent == nil {
		return ""
	}
	if alert.Agent.ID != "" {
		return alert.Agent.ID
	}
	return alert.Agent.Name
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func graphTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
