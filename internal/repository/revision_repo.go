package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
)

// RevisionRepository persists revisions and their processing logs
type RevisionRepository interface {
	Create(ctx context.Context, rev *domain.Revision) error
	FindByID(ctx context.Context, id uint64) (*domain.Revision, error)
	Save(ctx context.Context, rev *domain.Revision) error

	UpdateStatus(ctx context.Context, id uint64, status string) error
	SetScheduled(ctx context.Context, id uint64, scheduledAt int64, scheduledAtUTC, timezone string) error
	SetError(ctx context.Context, id uint64, message string) error
	ClearError(ctx context.Context, id uint64) error
	SetPublished(ctx context.Context, id uint64, publishedAtUTC string) error
	// SetCancelled marks the revision cancelled and clears its due time
	// and error.
	SetCancelled(ctx context.Context, id uint64) error

	// FindDue returns scheduled revisions whose due moment has passed,
	// oldest first, capped at limit.
	FindDue(ctx context.Context, now int64, limit int) ([]domain.Revision, error)
	FindScheduled(ctx context.Context, limit, offset int) ([]domain.Revision, int64, error)
	FindByProduct(ctx context.Context, productID uint64) ([]domain.Revision, error)

	// HasScheduleConflict reports whether another revision of the same
	// product is scheduled for exactly the same moment.
	HasScheduleConflict(ctx context.Context, productID uint64, scheduledAt int64, excludeID uint64) (bool, error)

	// FindByKinds pages through revisions of the given kinds for migration
	FindByKinds(ctx context.Context, kinds []string, afterID uint64, limit int) ([]domain.Revision, error)
	// FindMissingTimestamp pages through rows with a raw schedule string
	// but no unix timestamp
	FindMissingTimestamp(ctx context.Context, afterID uint64, limit int) ([]domain.Revision, error)

	AppendLog(ctx context.Context, revisionID uint64, level, message string) error
	GetLogs(ctx context.Context, revisionID uint64) ([]domain.RevisionLog, error)
}

type revisionRepository struct {
	db *gorm.DB
}

func NewRevisionRepository(db *gorm.DB) RevisionRepository {
	return &revisionRepository{db: db}
}

func (r *revisionRepository) Create(ctx context.Context, rev *domain.Revision) error {
	return r.db.WithContext(ctx).Create(rev).Error
}

func (r *revisionRepository) FindByID(ctx context.Context, id uint64) (*domain.Revision, error) {
	var rev domain.Revision
	err := r.db.WithContext(ctx).First(&rev, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *revisionRepository) Save(ctx context.Context, rev *domain.Revision) error {
	return r.db.WithContext(ctx).Save(rev).Error
}

func (r *revisionRepository) UpdateStatus(ctx context.Context, id uint64, status string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *revisionRepository) SetScheduled(ctx context.Context, id uint64, scheduledAt int64, scheduledAtUTC, timezone string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           domain.RevisionStatusScheduled,
			"scheduled_at":     scheduledAt,
			"scheduled_at_utc": scheduledAtUTC,
			"timezone":         timezone,
			"error_message":    "",
		}).Error
}

func (r *revisionRepository) SetError(ctx context.Context, id uint64, message string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.RevisionStatusFailed,
			"error_message": message,
		}).Error
}

func (r *revisionRepository) ClearError(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("id = ?", id).
		Update("error_message", "").Error
}

func (r *revisionRepository) SetPublished(ctx context.Context, id uint64, publishedAtUTC string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           domain.RevisionStatusPublished,
			"published_at_utc": publishedAtUTC,
			"error_message":    "",
		}).Error
}

func (r *revisionRepository) SetCancelled(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           domain.RevisionStatusCancelled,
			"scheduled_at":     0,
			"scheduled_at_utc": "",
			"error_message":    "",
		}).Error
}

func (r *revisionRepository) FindDue(ctx context.Context, now int64, limit int) ([]domain.Revision, error) {
	var revs []domain.Revision
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at > 0 AND scheduled_at <= ?", domain.RevisionStatusScheduled, now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&revs).Error
	return revs, err
}

func (r *revisionRepository) FindScheduled(ctx context.Context, limit, offset int) ([]domain.Revision, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("status = ?", domain.RevisionStatusScheduled)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var revs []domain.Revision
	err := q.Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&revs).Error
	return revs, total, err
}

func (r *revisionRepository) FindByProduct(ctx context.Context, productID uint64) ([]domain.Revision, error) {
	var revs []domain.Revision
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id DESC").
		Find(&revs).Error
	return revs, err
}

func (r *revisionRepository) HasScheduleConflict(ctx context.Context, productID uint64, scheduledAt int64, excludeID uint64) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&domain.Revision{}).
		Where("product_id = ? AND status = ? AND scheduled_at = ?",
			productID, domain.RevisionStatusScheduled, scheduledAt)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *revisionRepository) FindByKinds(ctx context.Context, kinds []string, afterID uint64, limit int) ([]domain.Revision, error) {
	var revs []domain.Revision
	err := r.db.WithContext(ctx).
		Where("kind IN ? AND id > ?", kinds, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&revs).Error
	return revs, err
}

func (r *revisionRepository) FindMissingTimestamp(ctx context.Context, afterID uint64, limit int) ([]domain.Revision, error) {
	var revs []domain.Revision
	err := r.db.WithContext(ctx).
		Where("scheduled_at = 0 AND scheduled_at_utc <> '' AND id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&revs).Error
	return revs, err
}

func (r *revisionRepository) AppendLog(ctx context.Context, revisionID uint64, level, message string) error {
	return r.db.WithContext(ctx).Create(&domain.RevisionLog{
		RevisionID: revisionID,
		Level:      level,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}).Error
}

func (r *revisionRepository) GetLogs(ctx context.Context, revisionID uint64) ([]domain.RevisionLog, error) {
	var logs []domain.RevisionLog
	err := r.db.WithContext(ctx).
		Where("revision_id = ?", revisionID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
