package persister

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/models"
)

func sshAlert() *models.Alert {
	return &models.Alert{
		ID:        "a1",
		Timestamp: time.Date(2024, 12, 15, 14, 32, 15, 0, time.UTC),
		Rule: &models.Rule{
			ID:          "100002",
			Level:       8,
			Description: "SSH brute force attack detected",
			Groups:      []string{"authentication", "attack"},
		},
		Agent: &models.Agent{ID: "A1", Name: "web-01", IP: "192.168.1.10"},
		Data: map[string]any{
			"srcip":   "203.0.113.45",
			"dstip":   "192.168.1.10",
			"srcuser": "admin",
		},
	}
}

func findEntity(ex *Extraction, label string) *models.Entity {
	for i := range ex.Entities {
		if ex.Entities[i].Label == label {
			return &ex.Entities[i]
		}
	}
	return nil
}

func findEdges(ex *Extraction, relType string) []models.Relationship {
	var out []models.Relationship
	for _, rel := range ex.Relationships {
		if rel.Type == relType {
			out = append(out, rel)
		}
	}
	return out
}

func TestExtract_CoreEntitiesAndEdges(t *testing.T) {
	ex := Extract(sshAlert(), models.NewContextBundle(), "high", "report", 0.7, 30*time.Minute)

	alert := findEntity(ex, models.LabelAlert)
	require.NotNil(t, alert)
	assert.Equal(t, "a1", alert.Identity["id"])
	assert.Equal(t, "high", alert.Props["risk_level"])
	assert.Equal(t, "100002", alert.Props["rule_id"])
	assert.Equal(t, 8, alert.Props["rule_level"])
	assert.Equal(t, "2024-12-15T14:32:15Z", alert.Props["timestamp"])

	host := findEntity(ex, models.LabelHost)
	require.NotNil(t, host)
	assert.Equal(t, "A1", host.Identity["agent_id"])

	user := findEntity(ex, models.LabelUser)
	require.NotNil(t, user)
	assert.Equal(t, "admin", user.Identity["username"])

	rule := findEntity(ex, models.LabelRule)
	require.NotNil(t, rule)

	require.Len(t, findEdges(ex, models.RelTriggeredOn), 1)
	require.Len(t, findEdges(ex, models.RelHasSourceIP), 1)
	require.Len(t, findEdges(ex, models.RelHasDestIP), 1)
	require.Len(t, findEdges(ex, models.RelInvolvesUser), 1)
	require.Len(t, findEdges(ex, models.RelMatchedRule), 1)
}

func TestExtract_IPInternalFlag(t *testing.T) {
	ex := Extract(sshAlert(), models.NewContextBundle(), "high", "", 0.7, 30*time.Minute)

	var internal, external *models.Entity
	for i := range ex.Entities {
		if ex.Entities[i].Label != models.LabelIPAddress {
			continue
		}
		switch ex.Entities[i].Identity["address"] {
		case "192.168.1.10":
			internal = &ex.Entities[i]
		case "203.0.113.45":
			external = &ex.Entities[i]
		}
	}
	require.NotNil(t, internal)
	require.NotNil(t, external)
	assert.Equal(t, true, internal.Props["is_internal"])
	assert.Equal(t, false, external.Props["is_internal"])
}

func TestExtract_MissingFieldsSuppressEntities(t *testing.T) {
	alert := &models.Alert{
		ID:        "a7",
		Timestamp: time.Now(),
		Rule:      &models.Rule{ID: "1", Description: "x", Level: 3},
		Agent:     &models.Agent{ID: "A7"},
	}
	ex := Extract(alert, models.NewContextBundle(), "low", "", 0.7, 30*time.Minute)

	assert.Nil(t, findEntity(ex, models.LabelIPAddress))
	assert.Nil(t, findEntity(ex, models.LabelUser))
	assert.Nil(t, findEntity(ex, models.LabelProcess))
	assert.Nil(t, findEntity(ex, models.LabelFile))
	assert.Empty(t, findEdges(ex, models.RelHasSourceIP))
	assert.Empty(t, findEdges(ex, models.RelInvolvesUser))
}

func TestExtract_SimilarEdgesRespectThreshold(t *testing.T) {
	bundle := models.NewContextBundle()
	bundle.Add(models.SlotSimilarAlerts, 50,
		models.Evidence{AlertID: "h1", Score: 0.92},
		models.Evidence{AlertID: "h2", Score: 0.70},
		models.Evidence{AlertID: "h3", Score: 0.69},
		models.Evidence{AlertID: "", Score: 0.99},
	)
	ex := Extract(sshAlert(), bundle, "high", "", 0.7, 30*time.Minute)

	edges := findEdges(ex, models.RelSimilarTo)
	require.Len(t, edges, 2)
	assert.Equal(t, 0.92, edges[0].Props["score"])
	assert.Equal(t, map[string]any{"id": "a1"}, edges[0].From.Identity)
	assert.Equal(t, map[string]any{"id": "h1"}, edges[0].To.Identity)
}

func TestExtract_PrecedesOrientedEarliestToLatest(t *testing.T) {
	alert := sshAlert() // 14:32:15Z
	bundle := models.NewContextBundle()
	bundle.Add(models.SlotTemporalSequences, 50,
		// 10 minutes earlier: other PRECEDES current.
		models.Evidence{AlertID: "earlier", Timestamp: alert.Timestamp.Add(-10 * time.Minute)},
		// 5 minutes later: current PRECEDES other.
		models.Evidence{AlertID: "later", Timestamp: alert.Timestamp.Add(5 * time.Minute)},
		// Outside the correlation window: no edge.
		models.Evidence{AlertID: "distant", Timestamp: alert.Timestamp.Add(-2 * time.Hour)},
	)
	ex := Extract(alert, bundle, "high", "", 0.7, 30*time.Minute)

	edges := findEdges(ex, models.RelPrecedes)
	require.Len(t, edges, 2)

	assert.Equal(t, "earlier", edges[0].From.Identity["id"])
	assert.Equal(t, "a1", edges[0].To.Identity["id"])
	assert.Equal(t, int64(600), edges[0].Props["time_gap_seconds"])

	assert.Equal(t, "a1", edges[1].From.Identity["id"])
	assert.Equal(t, "later", edges[1].To.Identity["id"])
	assert.Equal(t, int64(300), edges[1].Props["time_gap_seconds"])
}

func TestExtract_IndicatorsFromReport(t *testing.T) {
	report := `The attack originated from 198.51.100.7 using payload
sha256 e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
staged via evil-domain.com. Internal host 192.168.1.10 was the target.`

	ex := Extract(sshAlert(), models.NewContextBundle(), "high", report, 0.7, 30*time.Minute)

	values := map[string]string{}
	for _, e := range ex.Entities {
		if e.Label == models.LabelThreatIndicator {
			values[e.Identity["value"].(string)] = e.Identity["kind"].(string)
		}
	}
	assert.Equal(t, "ip", values["198.51.100.7"])
	assert.Equal(t, "ip", values["192.168.1.10"])
	assert.Equal(t, "hash", values["e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"])
	assert.Equal(t, "domain", values["evil-domain.com"])

	// One PART_OF edge per indicator, pointing at the alert.
	edges := findEdges(ex, models.RelPartOf)
	assert.Len(t, edges, len(values))
	for _, edge := range edges {
		assert.Equal(t, models.LabelAlert, edge.To.Label)
		assert.Equal(t, "a1", edge.To.Identity["id"])
	}
}

func TestExtract_IndicatorsDeduplicated(t *testing.T) {
	report := "Seen 198.51.100.7 and again 198.51.100.7 and once more 198.51.100.7"
	ex := Extract(sshAlert(), models.NewContextBundle(), "high", report, 0.7, 30*time.Minute)

	count := 0
	for _, e := range ex.Entities {
		if e.Label == models.LabelThreatIndicator {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, findEdges(ex, models.RelPartOf), 1)
}

func TestExtract_Idempotent(t *testing.T) {
	first := Extract(sshAlert(), models.NewContextBundle(), "high", "report 198.51.100.7", 0.7, 30*time.Minute)
	second := Extract(sshAlert(), models.NewContextBundle(), "high", "report 198.51.100.7", 0.7, 30*time.Minute)

	assert.Equal(t, first.Entities, second.Entities)
	assert.Equal(t, first.Relationships, second.Relationships)
}
