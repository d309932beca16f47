// Package analyzer selects the prompt template for an alert's gathered
// context, invokes the LLM, and returns the triage report.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/codeready-toolchain/argus/pkg/contextfmt"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/models"
)

// riskScanChars bounds how far into the report the risk token is sought.
const riskScanChars = 500

// riskToken matches the first risk-level word in the report head. When
// several candidates appear, the first match wins.
var riskToken = regexp.MustCompile(`(?i)\b(critical|high|medium|low|informational)\b`)

// Report is the analyzer output.
type Report struct {
	Text       string
	RiskLevel  string
	ProviderID string
	// Failed marks an analysis-failed report produced without the LLM.
	Failed bool
}

// Analyzer drives chat completion for one alert.
type Analyzer struct {
	client  llm.Client
	timeout time.Duration
	metrics *metrics.Metrics
}

// New builds an analyzer. metrics may be nil in tests.
func New(client llm.Client, timeout time.Duration, m *metrics.Metrics) *Analyzer {
	return &Analyzer{client: client, timeout: timeout, metrics: m}
}

// Analyze renders the appropriate template and calls the provider. LLM
// failure does not propagate: the result is a structured analysis-failed
// report with risk level unknown, so the pipeline still enriches the
// alert.
func (a *Analyzer) Analyze(ctx context.Context, summary string, formatted *contextfmt.FormattedContext) *Report {
	var userPrompt string
	if formatted.GraphPresent {
		userPrompt = fmt.Sprintf(graphAwarePrompt, summary, orNone(formatted.GraphContext))
	} else {
		userPrompt = fmt.Sprintf(plainPrompt, summary,
			orNone(formatted.SimilarAlerts),
			orNone(formatted.SystemMetrics),
			orNone(formatted.ProcessData),
			orNone(formatted.NetworkLogs),
			orNone(combineAdditional(formatted)))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	completion, err := a.client.Complete(callCtx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	})
	if err != nil {
		slog.Warn("LLM analysis failed", "provider", a.client.ProviderID(), "error", err)
		return &Report{
			Text:       fmt.Sprintf(analysisFailedReport, err),
			RiskLevel:  models.RiskUnknown,
			ProviderID: a.client.ProviderID(),
			Failed:     true,
		}
	}

	if a.metrics != nil {
		a.metrics.LLMTokens.WithLabelValues("in").Add(float64(completion.TokensIn))
		a.metrics.LLMTokens.WithLabelValues("out").Add(float64(completion.TokensOut))
	}

	return &Report{
		Text:       completion.Text,
		RiskLevel:  ExtractRiskLevel(completion.Text),
		ProviderID: completion.ProviderID,
	}
}

// ExtractRiskLevel scans the head of a report for the first risk-level
// token, case-insensitively. Reports without one rate unknown.
func ExtractRiskLevel(report string) string {
	head := report
	if len(head) > riskScanChars {
		head = head[:riskScanChars]
	}
	match := riskToken.FindString(head)
	if match == "" {
		return models.RiskUnknown
	}
	return strings.ToLower(match)
}

// combineAdditional merges the leftover context slots, and the graph
// fallback lines when the plain template is in use.
func combineAdditional(formatted *contextfmt.FormattedContext) string {
	parts := []string{}
	if formatted.Additional != "" {
		parts = append(parts, formatted.Additional)
	}
	if formatted.GraphContext != "" {
		parts = append(parts, formatted.GraphContext)
	}
	return strings.Join(parts, "\n\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none available)"
	}
	return s
}
