package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/pkg/logger"
)

// DefaultBatchSize caps how many due revisions one pass picks up
const DefaultBatchSize = 50

// ProductLocker arbitrates apply access per product across instances
type ProductLocker interface {
	Acquire(ctx context.Context, productID uint64) (bool, error)
	Release(ctx context.Context, productID uint64) error
}

// RunSummary reports the outcome of one due-scan pass
type RunSummary struct {
	Due       int      `json:"due"`
	Processed int      `json:"processed"`
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
	Locked    int      `json:"locked"`
	IDs       []uint64 `json:"ids"`
}

// RunnerService drives due revisions through the apply engine
type RunnerService interface {
	// RunDueNow processes all currently due revisions, up to limit (the
	// configured batch size when limit <= 0). Reentrant calls within the
	// process return an empty summary.
	RunDueNow(ctx context.Context, limit int) (*RunSummary, error)
	// RunOne processes a single revision regardless of its due time. It
	// must still be in scheduled status.
	RunOne(ctx context.Context, revisionID uint64) (ApplyResult, error)
	// Retry moves a failed revision back to scheduled, due immediately.
	Retry(ctx context.Context, revisionID uint64) (*domain.Revision, error)
}

type runnerService struct {
	revisions repository.RevisionRepository
	systems   repository.SystemRepository
	apply     ApplyService
	locks     ProductLocker
	batchSize int
	guard     processGuard
	now       func() time.Time
}

func NewRunnerService(
	revisions repository.RevisionRepository,
	systems repository.SystemRepository,
	apply ApplyService,
	locks ProductLocker,
	batchSize int,
) RunnerService {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &runnerService{
		revisions: revisions,
		systems:   systems,
		apply:     apply,
		locks:     locks,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (s *runnerService) RunDueNow(ctx context.Context, limit int) (*RunSummary, error) {
	if !s.guard.tryEnter() {
		logger.GetLogger().Warn().Msg("due-scan already running, skipping pass")
		return &RunSummary{}, nil
	}
	defer s.guard.leave()

	if limit <= 0 || limit > s.batchSize {
		limit = s.batchSize
	}
	now := s.now().UTC().Unix()
	due, err := s.revisions.FindDue(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due revisions: %w", err)
	}

	summary := &RunSummary{Due: len(due)}
	for i := range due {
		rev := &due[i]
		summary.IDs = append(summary.IDs, rev.ID)

		result, err := s.processOne(ctx, rev)
		switch result {
		case ApplyPublished:
			summary.Processed++
			summary.Published++
		case ApplyFailed:
			summary.Processed++
			summary.Failed++
		case applyLocked:
			summary.Locked++
		case ApplySkipped:
			// Terminal revisions picked up by a racing pass are not
			// counted as processed.
		}
		if err != nil {
			logger.WithRevisionID(rev.ID).Error().Err(err).Msg("due revision apply failed")
		}
	}

	if summary.Due > 0 {
		ctxJSON, _ := json.Marshal(summary)
		_ = s.systems.AppendEvent(ctx, domain.EventRunnerPass,
			fmt.Sprintf("processed %d of %d due revisions", summary.Processed, summary.Due),
			string(ctxJSON))
	}

	logger.GetLogger().Info().
		Int("due", summary.Due).
		Int("published", summary.Published).
		Int("failed", summary.Failed).
		Int("locked", summary.Locked).
		Msg("due-scan pass complete")
	return summary, nil
}

// applyLocked is an internal outcome of processOne, never returned by
// the apply engine itself
const applyLocked ApplyResult = "locked"

func (s *runnerService) processOne(ctx context.Context, rev *domain.Revision) (ApplyResult, error) {
	acquired, err := s.locks.Acquire(ctx, rev.ProductID)
	if err != nil {
		return applyLocked, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		revisionsLocked.Inc()
		_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelInfo, "product locked, deferred to next pass")
		return applyLocked, nil
	}
	defer func() {
		if err := s.locks.Release(ctx, rev.ProductID); err != nil {
			logger.GetLogger().Error().Err(err).Uint64("product_id", rev.ProductID).Msg("lock release failed")
		}
	}()

	start := s.now()
	result, err := s.apply.Apply(ctx, rev)
	applyDuration.Observe(s.now().Sub(start).Seconds())

	switch result {
	case ApplyPublished:
		revisionsPublished.Inc()
	case ApplyFailed:
		revisionsFailed.Inc()
	}
	return result, err
}

func (s *runnerService) RunOne(ctx context.Context, revisionID uint64) (ApplyResult, error) {
	rev, err := s.revisions.FindByID(ctx, revisionID)
	if err != nil {
		return ApplyFailed, err
	}
	if rev.Status != domain.RevisionStatusScheduled {
		return ApplySkipped, common.ErrNotScheduled
	}

	result, err := s.processOne(ctx, rev)
	if result == applyLocked && err == nil {
		return ApplySkipped, common.ErrLockUnavailable
	}
	return result, err
}

func (s *runnerService) Retry(ctx context.Context, revisionID uint64) (*domain.Revision, error) {
	rev, err := s.revisions.FindByID(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Status != domain.RevisionStatusFailed {
		return nil, common.ErrNotFailed
	}

	// Due immediately: the next pass picks it up.
	now := s.now().UTC()
	unix := now.Unix()
	atUTC := now.Format(time.RFC3339)
	if err := s.revisions.SetScheduled(ctx, rev.ID, unix, atUTC, rev.Timezone); err != nil {
		return nil, err
	}
	rev.Status = domain.RevisionStatusScheduled
	rev.ScheduledAt = unix
	rev.ScheduledAtUTC = atUTC
	rev.ErrorMessage = ""

	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelInfo, "retry requested, rescheduled for immediate run")
	logger.WithRevisionID(rev.ID).Info().Msg("failed revision queued for retry")
	return rev, nil
}
