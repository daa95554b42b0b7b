package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartTruncationJob runs TruncateOverflow immediately and then on every tick
// until ctx is cancelled.
func (s *FeedService) StartTruncationJob(ctx context.Context, interval time.Duration, limit int) {
	s.runTruncation(ctx, limit)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTruncation(ctx, limit)
		}
	}
}

func (s *FeedService) runTruncation(ctx context.Context, limit int) {
	popped, err := s.TruncateOverflow(ctx, limit)
	if err != nil {
		s.log.Error("comment truncation failed", zap.Int("popped", popped), zap.Error(err))
	} else if popped > 0 {
		s.log.Info("comment truncation complete", zap.Int("popped", popped))
	}
}

// StartReconcileJob runs Reconcile immediately and then on every tick until
// ctx is cancelled.
func (s *FeedService) StartReconcileJob(ctx context.Context, interval, grace time.Duration, batch int) {
	s.runReconcile(ctx, grace, batch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runReconcile(ctx, grace, batch)
		}
	}
}

func (s *FeedService) runReconcile(ctx context.Context, grace time.Duration, batch int) {
	report, err := s.Reconcile(ctx, grace, batch)
	if err != nil {
		s.log.Error("fan-out reconciliation failed", zap.Error(err))
		return
	}
	if report.Scanned > 0 {
		s.log.Info("fan-out reconciliation complete",
			zap.Int("scanned", report.Scanned),
			zap.Int("repaired", report.Repaired),
			zap.Int("failed", report.Failed))
	}
}
