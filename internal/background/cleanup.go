package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/alumnigate/internal/clock"
)

// CleanupTask removes rows that have aged out of one table. Run receives the
// current time and returns how many rows it deleted.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

// Purger deletes rows older than a cutoff
type Purger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionTask deletes rows older than retention
func RetentionTask(name string, p Purger, retention time.Duration) CleanupTask {
	return CleanupTask{
		Name: name,
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			return p.DeleteBefore(ctx, now.Add(-retention))
		},
	}
}

// CleanupManager periodically enforces retention on the security tables
type CleanupManager struct {
	tasks    []CleanupTask
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(tasks []CleanupTask, clk clock.Clock, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		clock:    clk,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task and returns the total rows deleted. A failing task
// is logged and does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.clock.Now()
	var total int64
	for _, task := range cm.tasks {
		rowsDeleted, err := task.Run(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("retention cleanup failed",
				slog.String("task", task.Name),
				slog.Any("error", err),
			)
			continue
		}
		if rowsDeleted > 0 {
			cm.logger.Info("retention cleanup completed",
				slog.String("task", task.Name),
				slog.Int64("rows_deleted", rowsDeleted),
			)
		}
		total += rowsDeleted
	}
	return total
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
