package graphstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRegistry_AllTraversalsRegistered(t *testing.T) {
	registry := NewTemplateRegistry()
	expected := []string{
		TemplateAttackSourcePanorama,
		TemplateLateralMovementDetection,
		TemplateProcessExecutionChain,
		TemplateFileInteractions,
		TemplateNetworkTopology,
		TemplateUserBehavior,
		TemplateTemporalCorrelation,
		TemplateIPReputation,
		TemplateThreatLandscape,
	}
	assert.Len(t, registry.Names(), len(expected))
	for _, name := range expected {
		tmpl, err := registry.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, tmpl.Name)
	}
}

func TestTemplateRegistry_UnknownName(t *testing.T) {
	registry := NewTemplateRegistry()
	_, err := registry.Get("no_such_template")
	assert.Error(t, err)
}

func TestTemplates_EveryQueryHasLimitAndBindsDeclaredParams(t *testing.T) {
	registry := NewTemplateRegistry()
	for _, name := range registry.Names() {
		tmpl, err := registry.Get(name)
		require.NoError(t, err)

		assert.Contains(t, tmpl.Query, "LIMIT 50", name)
		for _, param := range tmpl.Params {
			assert.Contains(t, tmpl.Query, "$"+param, "template %s must bind $%s", name, param)
		}
		// Parameters are bound, never interpolated.
		assert.NotContains(t, tmpl.Query, "%s", name)
		assert.NotContains(t, tmpl.Query, "%v", name)
	}
}

func TestTemplates_PanoramaExcludesRuleEdges(t *testing.T) {
	registry := NewTemplateRegistry()
	tmpl, err := registry.Get(TemplateAttackSourcePanorama)
	require.NoError(t, err)
	assert.True(t, strings.Contains(tmpl.Query, "MATCHED_RULE"))
	assert.Contains(t, tmpl.Query, "type(r) <> 'MATCHED_RULE'")
}
