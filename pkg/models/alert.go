// Package models holds the shared data types that flow through the triage
// pipeline: alerts, enrichments, retrieval plans, evidence bundles, and the
// knowledge-graph write types.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedAlert indicates an alert is missing fields the pipeline
// requires. Such alerts are tagged unprocessable and never retried.
var ErrMalformedAlert = errors.New("malformed alert")

// maxFullLogChars bounds the raw log text carried into the alert summary.
const maxFullLogChars = 8000

// FlexibleID is a string identifier that also accepts JSON numbers.
// SIEM rule ids appear both quoted and unquoted in the wild.
type FlexibleID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// Rule is the SIEM rule that produced an alert.
type Rule struct {
	ID          FlexibleID `json:"id"`
	Level       int        `json:"level"`
	Description string     `json:"description"`
	Groups      []string   `json:"groups"`
}

// Agent identifies the monitored endpoint the alert originated from.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// Decoder names the SIEM decoder that parsed the raw event.
type Decoder struct {
	Name string `json:"name"`
}

// Alert is the semi-structured record consumed from the SIEM index.
// The pipeline treats it as read-only; enrichment is written back through
// the vector store adapter, never onto this struct.
type Alert struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Rule      *Rule          `json:"rule,omitempty"`
	Agent     *Agent         `json:"agent,omitempty"`
	Decoder   *Decoder       `json:"decoder,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	FullLog   string         `json:"full_log,omitempty"`
}

// Validate reports ErrMalformedAlert when required fields are absent.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedAlert)
	}
	if a.Rule == nil {
		return fmt.Errorf("%w: alert %s has no rule", ErrMalformedAlert, a.ID)
	}
	if a.Agent == nil {
		return fmt.Errorf("%w: alert %s has no agent", ErrMalformedAlert, a.ID)
	}
	return nil
}

// DataField returns the named data field as a string, or "" when absent
// or not a scalar. SIEM data payloads are schemaless; only scalar fields
// participate in planning and graph extraction.
func (a *Alert) DataField(key string) string {
	if a.Data == nil {
		return ""
	}
	switch v := a.Data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// SourceIP returns the alert's source IP, trying the common field spellings.
func (a *Alert) SourceIP() string {
	for _, key := range []string{"srcip", "src_ip", "source_ip"} {
		if v := a.DataField(key); v != "" {
			return v
		}
	}
	return ""
}

// DestIP returns the alert's destination IP, trying the common field spellings.
func (a *Alert) DestIP() string {
	for _, key := range []string{"dstip", "dst_ip", "dest_ip"} {
		if v := a.DataField(key); v != "" {
			return v
		}
	}
	return ""
}

// Username returns the user involved in the alert, if any.
func (a *Alert) Username() string {
	for _, key := range []string{"srcuser", "user", "dstuser", "username"} {
		if v := a.DataField(key); v != "" {
			return v
		}
	}
	return ""
}

// ProcessName returns the process named by the alert data, if any.
func (a *Alert) ProcessName() string {
	for _, key := range []string{"process", "process_name"} {
		if v := a.DataField(key); v != "" {
			return v
		}
	}
	return ""
}

// FilePath returns the file path named by the alert data, if any.
func (a *Alert) FilePath() string {
	for _, key := range []string{"file", "path", "file_path"} {
		if v := a.DataField(key); v != "" {
			return v
		}
	}
	return ""
}

// HostName returns the best available identifier for the alert's host.
func (a *Alert) HostName() string {
	if a.Agent == nil {
		return ""
	}
	if a.Agent.Name != "" {
		return a.Agent.Name
	}
	return a.Agent.ID
}

// Summary projects the alert into the compact textual form shared by the
// embedding client and the analyzer prompt. Field order is stable so the
// same alert always embeds to the same vector.
func (a *Alert) Summary() string {
	var sb strings.Builder
	if a.Rule != nil {
		fmt.Fprintf(&sb, "Rule: %s (level %d)\n", a.Rule.Description, a.Rule.Level)
		if len(a.Rule.Groups) > 0 {
			fmt.Fprintf(&sb, "Groups: %s\n", strings.Join(a.Rule.Groups, ", "))
		}
	}
	if a.Agent != nil {
		fmt.Fprintf(&sb, "Agent: %s", a.HostName())
		if a.Agent.IP != "" {
			fmt.Fprintf(&sb, " (%s)", a.Agent.IP)
		}
		sb.WriteString("\n")
	}
	if a.Decoder != nil && a.Decoder.Name != "" {
		fmt.Fprintf(&sb, "Decoder: %s\n", a.Decoder.Name)
	}
	if v := a.SourceIP(); v != "" {
		fmt.Fprintf(&sb, "Source IP: %s\n", v)
	}
	if v := a.DestIP(); v != "" {
		fmt.Fprintf(&sb, "Destination IP: %s\n", v)
	}
	if v := a.Username(); v != "" {
		fmt.Fprintf(&sb, "User: %s\n", v)
	}
	if v := a.ProcessName(); v != "" {
		fmt.Fprintf(&sb, "Process: %s\n", v)
	}
	if v := a.FilePath(); v != "" {
		fmt.Fprintf(&sb, "File: %s\n", v)
	}
	if a.FullLog != "" {
		log := a.FullLog
		if len(log) > maxFullLogChars {
			log = log[:maxFullLogChars]
		}
		fmt.Fprintf(&sb, "Log: %s\n", log)
	}
	return strings.TrimRight(sb.String(), "\n")
}
