// Package scheduler runs the poll loop: on a fixed interval it lists
// unprocessed alerts from the vector store and dispatches them to the
// alert processor with bounded concurrency. Ticks are serialized; a tick
// that overruns the interval coalesces the missed ticks instead of
// queueing them.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/models"
	"github.com/codeready-toolchain/argus/pkg/vectorstore"
)

// State is the scheduler's lifecycle phase.
type State string

// Scheduler states.
const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateProcessing State = "processing"
	StateStopped    State = "stopped"
)

// AlertProcessor is the per-alert pipeline surface the scheduler drives.
type AlertProcessor interface {
	Process(ctx context.Context, alert *models.Alert) (string, error)
}

// Stats are the lifetime counters exposed on the status endpoint.
type Stats struct {
	Ticks     int64
	Processed int64
	Failed    int64
	LastTick  time.Time
}

// Scheduler owns the poll loop goroutine.
type Scheduler struct {
	vectors   vectorstore.Store
	processor AlertProcessor
	cfg       config.SchedulerConfig
	metrics   *metrics.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.RWMutex
	state State
	stats Stats
}

// New builds a scheduler. metrics may be nil in tests.
func New(vectors vectorstore.Store, processor AlertProcessor, cfg config.SchedulerConfig, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		vectors:   vectors,
		processor: processor,
		cfg:       cfg,
		metrics:   m,
		stopCh:    make(chan struct{}),
		state:     StateIdle,
	}
}

// Start launches the poll loop. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the loop to finish the current tick and exit, then waits.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the lifetime counters.
func (s *Scheduler) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.setState(StateStopped)

	slog.Info("Scheduler started",
		"interval", s.cfg.Interval(),
		"batch_size", s.cfg.BatchSize,
		"alert_concurrency", s.cfg.AlertConcurrency)

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-s.stopCh:
			slog.Info("Scheduler stopping")
			return
		case <-ctx.Done():
			slog.Info("Context cancelled, scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
			s.drainMissedTicks(ticker)
		}
	}
}

// drainMissedTicks coalesces ticks that fired while the previous tick
// was still running, so overruns never queue work.
func (s *Scheduler) drainMissedTicks(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
			if s.metrics != nil {
				s.metrics.TicksSkipped.Inc()
			}
		default:
			return
		}
	}
}

// tick polls once and processes the batch. A single alert's failure
// never aborts the batch or subsequent ticks.
func (s *Scheduler) tick(ctx context.Context) {
	s.setState(StatePolling)
	defer s.setState(StateIdle)

	log := slog.With("tick_id", uuid.NewString()[:8])

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
	}
	s.mu.Lock()
	s.stats.Ticks++
	s.stats.LastTick = time.Now()
	s.mu.Unlock()

	alerts, err := s.vectors.ListUnprocessed(ctx, s.cfg.BatchSize)
	if err != nil {
		log.Error("Polling for unprocessed alerts failed", "error", err)
		return
	}
	if len(alerts) == 0 {
		return
	}
	log.Info("Processing alert batch", "count", len(alerts))
	s.setState(StateProcessing)

	sem := semaphore.NewWeighted(int64(s.cfg.AlertConcurrency))
	var wg sync.WaitGroup
	var processed, failed int64
	var countMu sync.Mutex

	for _, alert := range alerts {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(alert *models.Alert) {
			defer wg.Done()
			defer sem.Release(1)

			outcome, err := s.processor.Process(ctx, alert)
			if s.metrics != nil {
				s.metrics.AlertsProcessed.WithLabelValues(outcome).Inc()
			}
			countMu.Lock()
			defer countMu.Unlock()
			if err != nil {
				log.Error("Alert processing failed", "alert_id", alert.ID, "outcome", outcome, "error", err)
				failed++
				return
			}
			processed++
		}(alert)
	}
	wg.Wait()

	s.mu.Lock()
	s.stats.Processed += processed
	s.stats.Failed += failed
	s.mu.Unlock()
	log.Info("Tick complete", "processed", processed, "failed", failed)
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		s.state = state
	}
}
