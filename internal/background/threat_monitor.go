package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/alumnigate/internal/services"
)

// AlertCycleRunner evaluates the threat level and raises alerts
type AlertCycleRunner interface {
	CheckAndAlert(ctx context.Context) (*services.AlertCycle, error)
}

// ThreatMonitor runs the alert cycle on a fixed interval
type ThreatMonitor struct {
	runner   AlertCycleRunner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewThreatMonitor(runner AlertCycleRunner, logger *slog.Logger, interval time.Duration) *ThreatMonitor {
	return &ThreatMonitor{
		runner:   runner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start blocks, running one cycle immediately and then once per interval
func (tm *ThreatMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(tm.interval)
	defer ticker.Stop()

	tm.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			tm.runCycle(ctx)
		case <-tm.stopCh:
			tm.logger.Info("threat monitor stopped")
			return
		case <-ctx.Done():
			tm.logger.Info("threat monitor context cancelled")
			return
		}
	}
}

func (tm *ThreatMonitor) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, tm.interval)
	defer cancel()

	cycle, err := tm.runner.CheckAndAlert(cycleCtx)
	if err != nil {
		tm.logger.Error("threat check failed", slog.Any("error", err))
	}
	if cycle == nil {
		return
	}

	tm.logger.Info("threat check completed",
		slog.String("level", string(cycle.Assessment.Level)),
		slog.Int("score", cycle.Assessment.Score),
		slog.Int("alerts_created", len(cycle.Created)),
		slog.Int("dispatch_failures", cycle.DispatchFailures),
	)
}

// Stop signals the monitor to stop
func (tm *ThreatMonitor) Stop() {
	close(tm.stopCh)
}
