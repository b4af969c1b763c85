package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-mapper/internal/config"
	internalgrpc "github.com/mr1hm/go-hazard-mapper/internal/grpc"
	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/repository"
	"github.com/mr1hm/go-hazard-mapper/internal/worker"
)

// Runner produces one analysis report per call.
type Runner interface {
	Run(ctx context.Context) (*models.Report, error)
}

// HealthReporter is told when a report becomes available.
type HealthReporter interface {
	SetServing(serving bool)
}

// Manager re-runs the analysis on a fixed interval and hands each report to
// a worker pool that records it and pushes it to stream subscribers.
type Manager struct {
	cfg         *config.Config
	runner      Runner
	repo        repository.RunRepository
	broadcaster *internalgrpc.Broadcaster
	health      HealthReporter
	clock       clockwork.Clock
	pool        *worker.Pool[*models.Report]
	trigger     chan struct{}
	wg          sync.WaitGroup
}

func NewManager(cfg *config.Config, runner Runner, repo repository.RunRepository, broadcaster *internalgrpc.Broadcaster, health HealthReporter, clock clockwork.Clock) *Manager {
	return &Manager{
		cfg:         cfg,
		runner:      runner,
		repo:        repo,
		broadcaster: broadcaster,
		health:      health,
		clock:       clock,
		trigger:     make(chan struct{}, 1),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.process, func(r *models.Report, err error) {
		slog.Error("error processing report", "run_id", r.RunID, "error", err)
	})
	m.pool.Start(ctx)

	m.wg.Add(1)
	go m.runLoop(ctx)
}

// Trigger requests an immediate run. Requests made while one is already
// pending are merged.
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.Analysis.RefreshInterval
	slog.Info("starting analysis loop", "interval", interval)

	// Initial run
	m.refresh(ctx)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := m.clock.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("analysis loop shutting down")
			return
		case <-tick:
			m.refresh(ctx)
		case <-m.trigger:
			m.refresh(ctx)
		}
	}
}

func (m *Manager) refresh(ctx context.Context) {
	report, err := m.runner.Run(ctx)
	if err != nil {
		// The pipeline logs failures; keep serving the previous report.
		return
	}

	if m.health != nil {
		m.health.SetServing(true)
	}

	if err := m.pool.Submit(ctx, report); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("error queueing report", "run_id", report.RunID, "error", err)
	}
}

func (m *Manager) process(ctx context.Context, report *models.Report) error {
	exists, err := m.repo.Exists(ctx, report.RunID)
	if err != nil {
		return fmt.Errorf("error checking existence: %w", err)
	}
	if exists {
		return nil
	}

	summary := report.RunSummary()
	summary.CreatedAt = m.clock.Now()
	if err := m.repo.Add(ctx, &summary); err != nil {
		return fmt.Errorf("error adding run: %w", err)
	}

	if m.broadcaster != nil {
		m.broadcaster.Broadcast(report)
	}

	slog.Info("recorded analysis run", "run_id", report.RunID, "at_risk", report.Summary.ResourcesAtRisk)
	return nil
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}
