// Package vectorstore adapts the SIEM alert index (OpenSearch) for the
// triage pipeline: unprocessed-alert polling, k-NN similarity search,
// keyword + time-window search, and enrichment write-back.
package vectorstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/models"
)

// ErrUnavailable is returned when the index cannot be reached or rejects
// a request.
var ErrUnavailable = errors.New("vector store unavailable")

// Store is the vector-store surface the pipeline depends on. The concrete
// OpenSearch implementation lives below; tests substitute fakes.
type Store interface {
	// ListUnprocessed returns the limit oldest alerts lacking ai_analysis,
	// oldest first by event time.
	ListUnprocessed(ctx context.Context, limit int) ([]*models.Alert, error)

	// KNN returns the top-k alerts by cosine similarity to vector. Only
	// alerts that already carry ai_analysis are eligible, so every hit
	// has a prior report.
	KNN(ctx context.Context, vector []float32, k int) ([]models.Evidence, error)

	// KeywordTimeWindow runs a fuzzy multi-field search bounded by host
	// and time range, dual-sorted by score then timestamp.
	KeywordTimeWindow(ctx context.Context, params models.KeywordParams) ([]models.Evidence, error)

	// UpdateEnrichment partially updates the alert document with its
	// vector and analysis. Idempotent: repeated writes converge.
	UpdateEnrichment(ctx context.Context, alertID string, vector []float32, analysis *models.AIAnalysis) error
}

var _ Store = (*OpenSearchStore)(nil)

// OpenSearchStore implements Store against a live cluster.
type OpenSearchStore struct {
	client     *opensearch.Client
	index      string
	dimension  int
	maxRetries int

	// docIndex caches alert id → document location, filled while listing
	// so the later write-back does not need a second lookup. The SIEM's
	// event id and the document _id are not always the same value.
	docIndex sync.Map
}

type docRef struct {
	index string
	docID string
}

// New connects to the cluster described by cfg. dimension is the
// knn_vector width installed by EnsureIndexTemplate.
func New(cfg config.VectorStoreConfig, dimension int) (*OpenSearchStore, error) {
	osCfg := opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.InsecureSkipVerify {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}
	return &OpenSearchStore{
		client:     client,
		index:      cfg.Index,
		dimension:  dimension,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// withRetry runs operation with exponential backoff, up to maxRetries
// retries with doubling delay. Operations mark non-retryable failures
// (client errors, decode errors, cancellation) with backoff.Permanent.
func (s *OpenSearchStore) withRetry(ctx context.Context, operation func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(), uint64(s.maxRetries)), ctx)
	return backoff.Retry(operation, policy)
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// retryableStatus reports whether a response status is worth retrying:
// server-side failures and throttling. Client errors are permanent.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// Ping verifies the cluster responds.
func (s *OpenSearchStore) Ping(ctx context.Context) error {
	operation := func() error {
		res, err := opensearchapi.PingRequest{}.Do(ctx, s.client)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			err := fmt.Errorf("ping status %s", res.Status())
			if retryableStatus(res.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := s.withRetry(ctx, operation); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// EnsureIndexTemplate installs the index template declaring alert_vector
// as a k-NN field with cosine similarity and HNSW parameters. Safe to
// call repeatedly.
func (s *OpenSearchStore) EnsureIndexTemplate(ctx context.Context) error {
	body := fmt.Sprintf(`{
  "index_patterns": [%q],
  "priority": 10,
  "template": {
    "settings": {
      "index.knn": true,
      "index.knn.algo_param.ef_search": 256
    },
    "mappings": {
      "properties": {
        "alert_vector": {
          "type": "knn_vector",
          "dimension": %d,
          "method": {
            "name": "hnsw",
            "space_type": "cosinesimil",
            "engine": "lucene",
            "parameters": {"m": 16, "ef_construction": 512}
          }
        },
        "ai_analysis": {
          "properties": {
            "report_text": {"type": "text"},
            "provider_id": {"type": "keyword"},
            "risk_level": {"type": "keyword"},
            "timestamp": {"type": "date"}
          }
        }
      }
    }
  }
}`, s.index, s.dimension)

	operation := func() error {
		res, err := opensearchapi.IndicesPutIndexTemplateRequest{
			Name: "argus-alert-enrichment",
			Body: strings.NewReader(body),
		}.Do(ctx, s.client)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			err := fmt.Errorf("put index template status %s", res.Status())
			if retryableStatus(res.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := s.withRetry(ctx, operation); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Info("Index template installed", "index", s.index, "dimension", s.dimension)
	return nil
}
