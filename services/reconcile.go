package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/circlefeed/metrics"
	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

func (s *FeedService) dispatch(task models.FanoutTask) {
	ok := s.runner.Submit(func(ctx context.Context) {
		// failures stay on the task for the next reconciliation pass
		_ = s.runTask(ctx, task)
	})
	if !ok {
		s.log.Warn("fan-out deferred", zap.Uint("task", task.ID), zap.String("post", task.PostID))
	}
}

// runTask executes one outbox task and records the outcome on it.
func (s *FeedService) runTask(ctx context.Context, task models.FanoutTask) error {
	start := time.Now()
	task.Attempts++
	err := s.executeTask(ctx, &task)

	switch {
	case err == nil:
		task.Status = models.TaskDone
		task.LastError = ""
	case task.Attempts >= s.maxAttempts:
		task.Status = models.TaskAbandoned
		task.LastError = err.Error()
	default:
		task.Status = models.TaskFailed
		task.LastError = err.Error()
	}
	metrics.TaskRuns.WithLabelValues(task.Kind, task.Status).Inc()
	metrics.FanoutDuration.WithLabelValues(task.Kind).Observe(time.Since(start).Seconds())

	if err != nil {
		s.log.Warn("fan-out task incomplete",
			zap.Uint("task", task.ID),
			zap.String("kind", task.Kind),
			zap.String("post", task.PostID),
			zap.Int("attempts", task.Attempts),
			zap.String("status", task.Status),
			zap.Error(err))
	}
	if uerr := s.posts.UpdateTask(ctx, &task); uerr != nil {
		s.log.Error("record task outcome failed", zap.Uint("task", task.ID), zap.Error(uerr))
	}
	return err
}

func (s *FeedService) executeTask(ctx context.Context, task *models.FanoutTask) error {
	post, err := s.posts.GetPost(ctx, task.PostID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownPost, task.PostID)
		}
		return fmt.Errorf("load post: %w", err)
	}
	switch task.Kind {
	case models.TaskKindPost:
		return s.deliverPost(ctx, post, task)
	case models.TaskKindComment:
		return s.propagateComment(ctx, post, task.CommentID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// Reconcile re-runs outbox tasks that are still pending or failed and were
// last touched more than grace ago. The grace period keeps the sweep away
// from tasks the dispatcher is still working on; running one twice is safe
// because every cache mutation is keyed by post or comment id.
func (s *FeedService) Reconcile(ctx context.Context, grace time.Duration, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	tasks, err := s.posts.PendingTasks(ctx, time.Now().Add(-grace), limit)
	if err != nil {
		return report, fmt.Errorf("list pending tasks: %w", err)
	}
	report.Scanned = len(tasks)
	for _, t := range tasks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.runTask(ctx, t); err != nil {
			report.Failed++
			continue
		}
		report.Repaired++
	}
	return report, nil
}
