package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert() *Alert {
	return &Alert{
		ID:        "a1",
		Timestamp: time.Date(2024, 12, 15, 14, 32, 15, 0, time.UTC),
		Rule: &Rule{
			ID:          "100002",
			Level:       8,
			Description: "SSH brute force attack detected",
			Groups:      []string{"authentication", "attack"},
		},
		Agent: &Agent{ID: "A1", Name: "web-01", IP: "192.168.1.10"},
		Data: map[string]any{
			"srcip":   "203.0.113.45",
			"dstip":   "192.168.1.10",
			"srcuser": "admin",
		},
	}
}

func TestAlertValidate_WellFormed(t *testing.T) {
	assert.NoError(t, sampleAlert().Validate())
}

func TestAlertValidate_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		alert *Alert
	}{
		{"no id", &Alert{Rule: &Rule{}, Agent: &Agent{}}},
		{"no rule", &Alert{ID: "a3", Agent: &Agent{}}},
		{"no agent", &Alert{ID: "a3", Rule: &Rule{}}},
		{"empty", &Alert{ID: "a3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.alert.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedAlert)
		})
	}
}

func TestFlexibleID_AcceptsStringAndNumber(t *testing.T) {
	var rule Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id": 100002, "level": 8}`), &rule))
	assert.Equal(t, FlexibleID("100002"), rule.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "100002"}`), &rule))
	assert.Equal(t, FlexibleID("100002"), rule.ID)
}

func TestAlertDataFields(t *testing.T) {
	alert := sampleAlert()
	assert.Equal(t, "203.0.113.45", alert.SourceIP())
	assert.Equal(t, "192.168.1.10", alert.DestIP())
	assert.Equal(t, "admin", alert.Username())
	assert.Equal(t, "", alert.ProcessName())

	// Non-scalar data values are ignored.
	alert.Data["nested"] = map[string]any{"x": 1}
	assert.Equal(t, "", alert.DataField("nested"))
}

func TestAlertSummary_Deterministic(t *testing.T) {
	alert := sampleAlert()
	first := alert.Summary()
	second := alert.Summary()
	assert.Equal(t, first, second)
	assert.Contains(t, first, "SSH brute force attack detected")
	assert.Contains(t, first, "level 8")
	assert.Contains(t, first, "203.0.113.45")
	assert.Contains(t, first, "admin")
}

func TestAlertSummary_TruncatesFullLog(t *testing.T) {
	alert := sampleAlert()
	long := make([]byte, 20000)
	for i := range long {
		long[i] = 'x'
	}
	alert.FullLog = string(long)
	assert.Less(t, len(alert.Summary()), 10000)
}

func TestHostName_FallsBackToAgentID(t *testing.T) {
	alert := &Alert{Agent: &Agent{ID: "007"}}
	assert.Equal(t, "007", alert.HostName())
	alert.Agent.Name = "web-01"
	assert.Equal(t, "web-01", alert.HostName())
}
