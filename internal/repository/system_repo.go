package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sanar/product-scheduler/internal/domain"
)

// SystemRepository persists the bounded operational event log and the
// migration progress record
type SystemRepository interface {
	AppendEvent(ctx context.Context, eventType, message, contextJSON string) error
	RecentEvents(ctx context.Context, limit int) ([]domain.SystemEvent, error)

	GetMigrationState(ctx context.Context) (*domain.MigrationState, error)
	SaveMigrationState(ctx context.Context, state *domain.MigrationState) error
}

type systemRepository struct {
	db *gorm.DB
}

func NewSystemRepository(db *gorm.DB) SystemRepository {
	return &systemRepository{db: db}
}

func (r *systemRepository) AppendEvent(ctx context.Context, eventType, message, contextJSON string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&domain.SystemEvent{
			Type:      eventType,
			Message:   message,
			Context:   contextJSON,
			CreatedAt: time.Now().UTC(),
		}).Error; err != nil {
			return err
		}

		// Prune oldest rows beyond the cap
		var count int64
		if err := tx.Model(&domain.SystemEvent{}).Count(&count).Error; err != nil {
			return err
		}
		if count <= domain.SystemEventCap {
			return nil
		}

		var cutoff domain.SystemEvent
		if err := tx.Order("id DESC").
			Offset(domain.SystemEventCap - 1).
			First(&cutoff).Error; err != nil {
			return err
		}
		return tx.Where("id < ?", cutoff.ID).Delete(&domain.SystemEvent{}).Error
	})
}

func (r *systemRepository) RecentEvents(ctx context.Context, limit int) ([]domain.SystemEvent, error) {
	var events []domain.SystemEvent
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *systemRepository) GetMigrationState(ctx context.Context) (*domain.MigrationState, error) {
	var state domain.MigrationState
	err := r.db.WithContext(ctx).First(&state, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.MigrationState{ID: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *systemRepository) SaveMigrationState(ctx context.Context, state *domain.MigrationState) error {
	state.ID = 1
	return r.db.WithContext(ctx).Save(state).Error
}
