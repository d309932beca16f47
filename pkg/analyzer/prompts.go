package analyzer

// Prompt templates for the two analysis paths. Both receive the alert
// summary; the graph-aware variant additionally receives the rendered
// Cypher-path block.

const systemPrompt = `You are a senior SOC analyst triaging SIEM alerts. Be precise, cite the evidence you were given, and never invent hosts, users or addresses that do not appear in the context.`

const graphAwarePrompt = `Analyze the following security alert using the threat graph evidence below.

ALERT:
%s

THREAT GRAPH EVIDENCE (Cypher path notation):
%s

Provide:
1. A one-paragraph summary of the event.
2. Your interpretation of the graph: attack paths, related entities, and any lateral movement.
3. Risk level: Critical, High, Medium, Low or Informational — justified by the graph evidence.
4. A recommendation that references the specific graph entities involved.

Start your answer with "Risk level:" followed by the rating.`

const plainPrompt = `Analyze the following security alert using the historical context below.

ALERT:
%s

SIMILAR HISTORICAL ALERTS:
%s

SYSTEM METRICS:
%s

PROCESS ACTIVITY:
%s

NETWORK ACTIVITY:
%s

ADDITIONAL CONTEXT:
%s

Provide:
1. A one-paragraph summary of the event.
2. How this alert relates to the historical context.
3. Risk level: Critical, High, Medium, Low or Informational.
4. A concrete recommendation for the operator.

Start your answer with "Risk level:" followed by the rating.`

// analysisFailedReport is written when the LLM could not be reached so
// the alert still leaves the unprocessed set.
const analysisFailedReport = `Automated analysis failed: the language model provider was unavailable (%s). The alert was embedded and indexed for correlation; re-run triage manually if this alert requires attention.`
