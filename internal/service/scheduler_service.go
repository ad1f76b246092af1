package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/pkg/cache"
	"github.com/sanar/product-scheduler/pkg/logger"
)

// SchedulerService manages the scheduled lifecycle of revisions
type SchedulerService interface {
	// Schedule promotes a draft (or failed) revision to scheduled at the
	// given moment. A past moment or an exact (product, time) collision
	// with another scheduled revision is rejected; on collision the
	// revision is demoted back to draft.
	Schedule(ctx context.Context, revisionID uint64, at time.Time, timezone string) (*domain.Revision, error)
	Cancel(ctx context.Context, revisionID uint64) (*domain.Revision, error)
	Reschedule(ctx context.Context, revisionID uint64, at time.Time, timezone string) (*domain.Revision, error)
	ListScheduled(ctx context.Context, limit, offset int) ([]domain.Revision, int64, error)
}

type schedulerService struct {
	revisions repository.RevisionRepository
	cache     cache.Service
	now       func() time.Time
}

func NewSchedulerService(revisions repository.RevisionRepository, cacheSvc cache.Service) SchedulerService {
	return &schedulerService{revisions: revisions, cache: cacheSvc, now: time.Now}
}

func (s *schedulerService) Schedule(ctx context.Context, revisionID uint64, at time.Time, timezone string) (*domain.Revision, error) {
	rev, err := s.revisions.FindByID(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidStatusTransition(rev.Status, domain.RevisionStatusScheduled) {
		return nil, fmt.Errorf("%w: cannot schedule revision in status %s", common.ErrInvalidInput, rev.Status)
	}

	return s.schedule(ctx, rev, at, timezone, 0)
}

func (s *schedulerService) Reschedule(ctx context.Context, revisionID uint64, at time.Time, timezone string) (*domain.Revision, error) {
	rev, err := s.revisions.FindByID(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Status != domain.RevisionStatusScheduled {
		return nil, common.ErrNotScheduled
	}

	// Exclude the revision itself from the collision check.
	return s.schedule(ctx, rev, at, timezone, rev.ID)
}

func (s *schedulerService) schedule(ctx context.Context, rev *domain.Revision, at time.Time, timezone string, excludeID uint64) (*domain.Revision, error) {
	atUTC := at.UTC()
	if !atUTC.After(s.now().UTC()) {
		return nil, common.ErrPastSchedule
	}

	unix := atUTC.Unix()
	conflict, err := s.revisions.HasScheduleConflict(ctx, rev.ProductID, unix, excludeID)
	if err != nil {
		return nil, err
	}
	if conflict {
		// A rejected reschedule keeps its old slot; a rejected schedule
		// lands (or stays) in draft.
		if excludeID == 0 && rev.Status != domain.RevisionStatusDraft {
			if uerr := s.revisions.UpdateStatus(ctx, rev.ID, domain.RevisionStatusDraft); uerr == nil {
				rev.Status = domain.RevisionStatusDraft
			}
		}
		return nil, common.ErrScheduleConflict
	}

	if timezone == "" {
		timezone = "UTC"
	}
	scheduledAtUTC := atUTC.Format(time.RFC3339)
	if err := s.revisions.SetScheduled(ctx, rev.ID, unix, scheduledAtUTC, timezone); err != nil {
		return nil, err
	}
	rev.Status = domain.RevisionStatusScheduled
	rev.ScheduledAt = unix
	rev.ScheduledAtUTC = scheduledAtUTC
	rev.Timezone = timezone
	rev.ErrorMessage = ""

	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelInfo, "scheduled for "+scheduledAtUTC)
	if s.cache != nil {
		_ = s.cache.InvalidateSchedules(ctx)
	}

	logger.WithRevisionID(rev.ID).Info().
		Int64("scheduled_at", unix).
		Str("timezone", timezone).
		Msg("revision scheduled")
	return rev, nil
}

func (s *schedulerService) Cancel(ctx context.Context, revisionID uint64) (*domain.Revision, error) {
	rev, err := s.revisions.FindByID(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Status != domain.RevisionStatusScheduled {
		return nil, common.ErrNotScheduled
	}

	if err := s.revisions.SetCancelled(ctx, rev.ID); err != nil {
		return nil, err
	}
	rev.Status = domain.RevisionStatusCancelled
	rev.ScheduledAt = 0
	rev.ScheduledAtUTC = ""
	rev.ErrorMessage = ""

	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelInfo, "schedule cancelled")
	if s.cache != nil {
		_ = s.cache.InvalidateSchedules(ctx)
	}

	logger.WithRevisionID(rev.ID).Info().Msg("revision cancelled")
	return rev, nil
}

func (s *schedulerService) ListScheduled(ctx context.Context, limit, offset int) ([]domain.Revision, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.revisions.FindScheduled(ctx, limit, offset)
}
