package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/codeready-toolchain/argus/pkg/models"
)

// searchResponse is the subset of the search API response we decode.
type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string          `json:"_id"`
	Index  string          `json:"_index"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// ListUnprocessed returns the oldest alerts that have no ai_analysis yet.
func (s *OpenSearchStore) ListUnprocessed(ctx context.Context, limit int) ([]*models.Alert, error) {
	query := map[string]any{
		"size": limit,
		"sort": []any{map[string]any{"timestamp": map[string]any{"order": "asc"}}},
		"query": map[string]any{
			"bool": map[string]any{
				"must_not": []any{
					map[string]any{"exists": map[string]any{"field": "ai_analysis"}},
				},
			},
		},
	}

	hits, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	alerts := make([]*models.Alert, 0, len(hits))
	for _, hit := range hits {
		alert := &models.Alert{}
		if err := json.Unmarshal(hit.Source, alert); err != nil {
			return nil, fmt.Errorf("decoding alert %s: %w", hit.ID, err)
		}
		if alert.ID == "" {
			alert.ID = hit.ID
		}
		if hit.Index != "" {
			s.docIndex.Store(alert.ID, docRef{index: hit.Index, docID: hit.ID})
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// KNN searches the alert_vector field. The filter restricts hits to
// alerts that already carry a triage report.
func (s *OpenSearchStore) KNN(ctx context.Context, vector []float32, k int) ([]models.Evidence, error) {
	query := map[string]any{
		"size": k,
		"query": map[string]any{
			"knn": map[string]any{
				"alert_vector": map[string]any{
					"vector": vector,
					"k":      k,
					"filter": map[string]any{
						"bool": map[string]any{
							"must": []any{
								map[string]any{"exists": map[string]any{"field": "ai_analysis"}},
							},
						},
					},
				},
			},
		},
		"_source": map[string]any{"excludes": []string{"alert_vector"}},
	}

	hits, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	evidence := make([]models.Evidence, 0, len(hits))
	for _, hit := range hits {
		ev := hitToEvidence(hit, models.SourceVector)
		// The lucene cosine engine scores hits as (1+cos)/2; undo that so
		// downstream thresholds operate on true cosine similarity.
		ev.Score = 2*hit.Score - 1
		evidence = append(evidence, ev)
	}
	return evidence, nil
}

// KeywordTimeWindow runs the compound fuzzy query over rule description,
// data fields, and the raw log, bounded by host and time window.
func (s *OpenSearchStore) KeywordTimeWindow(ctx context.Context, params models.KeywordParams) ([]models.Evidence, error) {
	filters := []any{
		map[string]any{"range": map[string]any{"timestamp": map[string]any{
			"gte": params.From.Format(time.RFC3339),
			"lte": params.To.Format(time.RFC3339),
		}}},
	}
	if params.Host != "" {
		filters = append(filters, map[string]any{
			"match": map[string]any{"agent.name": params.Host},
		})
	}

	query := map[string]any{
		"size": params.Size,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"multi_match": map[string]any{
						"query":     strings.Join(params.Keywords, " "),
						"fields":    []string{"rule.description^2", "data.*", "full_log"},
						"fuzziness": "AUTO",
					}},
				},
				"filter": filters,
			},
		},
		"sort": []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"timestamp": map[string]any{"order": "desc"}},
		},
		"_source": map[string]any{"excludes": []string{"alert_vector"}},
	}

	hits, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	evidence := make([]models.Evidence, 0, len(hits))
	for _, hit := range hits {
		evidence = append(evidence, hitToEvidence(hit, models.SourceKeyword))
	}
	return evidence, nil
}

// UpdateEnrichment writes alert_vector and ai_analysis onto the document.
// A partial update with a fixed payload converges under retry.
func (s *OpenSearchStore) UpdateEnrichment(ctx context.Context, alertID string, vector []float32, analysis *models.AIAnalysis) error {
	doc := map[string]any{
		"doc": map[string]any{
			"alert_vector": vector,
			"ai_analysis":  analysis,
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding enrichment for %s: %w", alertID, err)
	}

	ref, err := s.resolveDoc(ctx, alertID)
	if err != nil {
		return err
	}

	operation := func() error {
		res, err := opensearchapi.UpdateRequest{
			Index:      ref.index,
			DocumentID: ref.docID,
			Body:       bytes.NewReader(body),
		}.Do(ctx, s.client)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			err := fmt.Errorf("update status %s", res.Status())
			if retryableStatus(res.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := s.withRetry(ctx, operation); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: update %s: %v", ErrUnavailable, alertID, err)
	}
	return nil
}

func (s *OpenSearchStore) search(ctx context.Context, query map[string]any) ([]searchHit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	var decoded searchResponse
	operation := func() error {
		res, err := opensearchapi.SearchRequest{
			Index: []string{s.index},
			Body:  bytes.NewReader(body),
		}.Do(ctx, s.client)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			err := fmt.Errorf("search status %s", res.Status())
			if retryableStatus(res.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}
		decoded = searchResponse{}
		if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding search response: %w", err))
		}
		return nil
	}

	if err := s.withRetry(ctx, operation); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decoded.Hits.Hits, nil
}

// resolveDoc finds the concrete daily index and document id for an alert.
// The configured index is usually a pattern; updates must target the
// index the document actually lives in. Resolutions are cached between
// the list and the write-back of the same tick.
func (s *OpenSearchStore) resolveDoc(ctx context.Context, alertID string) (docRef, error) {
	if cached, ok := s.docIndex.Load(alertID); ok {
		return cached.(docRef), nil
	}

	query := map[string]any{
		"size":    1,
		"_source": false,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"ids": map[string]any{"values": []string{alertID}}},
					map[string]any{"term": map[string]any{"id": alertID}},
				},
				"minimum_should_match": 1,
			},
		},
	}

	hits, err := s.search(ctx, query)
	if err != nil {
		return docRef{}, err
	}
	if len(hits) == 0 {
		return docRef{}, fmt.Errorf("alert %s not found in %s", alertID, s.index)
	}
	ref := docRef{index: hits[0].Index, docID: hits[0].ID}
	s.docIndex.Store(alertID, ref)
	return ref, nil
}

// hitToEvidence flattens a search hit into the evidence record shape the
// formatter consumes.
func hitToEvidence(hit searchHit, source string) models.Evidence {
	ev := models.Evidence{
		Source:  source,
		AlertID: hit.ID,
		Score:   hit.Score,
		Fields:  map[string]any{},
	}

	var alert models.Alert
	if err := json.Unmarshal(hit.Source, &alert); err == nil {
		if alert.ID != "" {
			ev.AlertID = alert.ID
		}
		ev.Timestamp = alert.Timestamp
		if alert.Rule != nil {
			ev.Fields["rule_description"] = alert.Rule.Description
			ev.Fields["rule_level"] = alert.Rule.Level
		}
		if alert.Agent != nil {
			ev.Fields["agent_name"] = alert.HostName()
		}
		if v := alert.SourceIP(); v != "" {
			ev.Fields["srcip"] = v
		}
		if v := alert.DestIP(); v != "" {
			ev.Fields["dstip"] = v
		}
		if v := alert.Username(); v != "" {
			ev.Fields["user"] = v
		}
	}

	// Carry the prior report when present, independent of alert decoding.
	var envelope struct {
		AIAnalysis *models.AIAnalysis `json:"ai_analysis"`
	}
	if err := json.Unmarshal(hit.Source, &envelope); err == nil && envelope.AIAnalysis != nil {
		ev.Fields["report_text"] = envelope.AIAnalysis.ReportText
		ev.Fields["risk_level"] = envelope.AIAnalysis.RiskLevel
	}
	return ev
}
