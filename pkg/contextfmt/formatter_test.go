package contextfmt

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/argus/pkg/models"
)

func graphEvidence(nodeID string) models.Evidence {
	return models.Evidence{
		Source: models.SourceGraph,
		Path: &models.GraphPath{
			Nodes: []models.GraphNode{
				{Type: "Alert", ID: nodeID},
				{Type: "Host", ID: "web-01"},
			},
			Edges: []models.GraphEdge{{Type: "TRIGGERED_ON"}},
		},
	}
}

func TestFormat_GraphPresentSelection(t *testing.T) {
	// ip_reputation alone does not flip the template.
	bundle := models.NewContextBundle()
	bundle.Add(models.SlotIPReputation, 50, models.Evidence{Fields: map[string]any{"attack_count": 4}})
	assert.False(t, Format(bundle).GraphPresent)

	// attack_paths does.
	bundle.Add(models.SlotAttackPaths, 50, graphEvidence("a9"))
	formatted := Format(bundle)
	assert.True(t, formatted.GraphPresent)
	assert.Contains(t, formatted.GraphContext, "(Alert:a9)")
	// Scalar graph slots render inside the graph block too.
	assert.Contains(t, formatted.GraphContext, "attack_count=4")
}

func TestFormat_EmptyBundle(t *testing.T) {
	formatted := Format(models.NewContextBundle())
	assert.False(t, formatted.GraphPresent)
	assert.Empty(t, formatted.GraphContext)
	assert.Empty(t, formatted.SimilarAlerts)
}

func TestFormat_SimilarAlertsIncludeScoreAndReportExcerpt(t *testing.T) {
	longReport := strings.Repeat("analysis ", 100)
	bundle := models.NewContextBundle()
	bundle.Add(models.SlotSimilarAlerts, 50, models.Evidence{
		Source:    models.SourceVector,
		AlertID:   "h1",
		Score:     0.91,
		Timestamp: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC),
		Fields: map[string]any{
			"rule_description": "SSH brute force attack detected",
			"report_text":      longReport,
			"risk_level":       "high",
		},
	})
	formatted := Format(bundle)

	assert.Contains(t, formatted.SimilarAlerts, "similarity 0.91")
	assert.Contains(t, formatted.SimilarAlerts, "SSH brute force attack detected")
	assert.Contains(t, formatted.SimilarAlerts, "prior risk high")
	assert.Contains(t, formatted.SimilarAlerts, "…", "long reports are truncated")
	assert.Less(t, len(formatted.SimilarAlerts), len(longReport))
}

func TestFormat_GraphBlockCapped(t *testing.T) {
	bundle := models.NewContextBundle()
	for i := 0; i < 200; i++ {
		bundle.Add(models.SlotAttackPaths, 0, graphEvidence(fmt.Sprintf("alert-%03d", i)))
	}
	formatted := Format(bundle)

	assert.LessOrEqual(t, len(formatted.GraphContext), graphBlockChars+len("\n[graph context truncated]"))
	assert.Contains(t, formatted.GraphContext, "[graph context truncated]")
}

func TestFormat_FallbackSynthesizesDegeneratePaths(t *testing.T) {
	bundle := models.NewContextBundle()
	for i := 0; i < 20; i++ {
		bundle.Add(models.SlotSimilarAlerts, 50, models.Evidence{
			Source:  models.SourceVector,
			AlertID: fmt.Sprintf("h%d", i),
			Fields:  map[string]any{"srcip": "203.0.113.45", "user": "admin"},
		})
	}
	formatted := Format(bundle)

	assert.False(t, formatted.GraphPresent)
	assert.NotEmpty(t, formatted.GraphContext)
	assert.Contains(t, formatted.GraphContext, "HAS_SOURCE_IP")

	pathLines := 0
	for _, line := range strings.Split(formatted.GraphContext, "\n") {
		if strings.HasPrefix(line, "(") {
			pathLines++
		}
	}
	assert.LessOrEqual(t, pathLines, fallbackPathLines)
}

func TestFormat_SlotHeadersNameAnalysisDimensions(t *testing.T) {
	bundle := models.NewContextBundle()
	bundle.Add(models.SlotAttackPaths, 50, graphEvidence("a1"))
	bundle.Add(models.SlotLateralMovement, 50, graphEvidence("a2"))
	formatted := Format(bundle)

	assert.Contains(t, formatted.GraphContext, "## Attack source panorama")
	assert.Contains(t, formatted.GraphContext, "## Lateral movement")
}
