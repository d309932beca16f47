// Package api exposes the operational HTTP surface: liveness, pipeline
// status, and Prometheus metrics. The triage pipeline itself has no HTTP
// API; alerts flow through the stores.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/argus/pkg/graphstore"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/scheduler"
	"github.com/codeready-toolchain/argus/pkg/vectorstore"
	"github.com/codeready-toolchain/argus/pkg/version"
)

// Pinger is the vector store liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the operational HTTP server.
type Server struct {
	httpServer *http.Server
	vectors    Pinger
	graph      graphstore.Store
	sched      *scheduler.Scheduler
	llmID      string
}

// NewServer wires the routes. vectors must be the concrete store so the
// health check probes the cluster, not a fake.
func NewServer(port string, vectors Pinger, graph graphstore.Store, sched *scheduler.Scheduler, m *metrics.Metrics, llmID string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		vectors: vectors,
		graph:   graph,
		sched:   sched,
		llmID:   llmID,
	}

	router.GET("/health", s.healthHandler)
	router.GET("/status", s.statusHandler)
	router.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	return s
}

// Start serves until Shutdown. Blocking; run it in a goroutine.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	vectorStatus := "connected"
	if err := s.vectors.Ping(reqCtx); err != nil {
		status = http.StatusServiceUnavailable
		vectorStatus = err.Error()
	}

	graphStatus := "connected"
	if !s.graph.Available() {
		// Degraded, not unhealthy: the pipeline runs vector-only.
		graphStatus = "degraded"
	}

	c.JSON(status, gin.H{
		"status":       map[bool]string{true: "healthy", false: "unhealthy"}[status == http.StatusOK],
		"version":      version.Full(),
		"vector_store": vectorStatus,
		"graph_store":  graphStatus,
		"llm_provider": s.llmID,
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	stats := s.sched.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"scheduler_state": s.sched.State(),
		"ticks":           stats.Ticks,
		"alerts_ok":       stats.Processed,
		"alerts_failed":   stats.Failed,
		"last_tick":       stats.LastTick,
	})
}

// Ensure the concrete store satisfies the probe at compile time.
var _ Pinger = (*vectorstore.OpenSearchStore)(nil)
