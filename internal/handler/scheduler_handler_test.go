package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/service"
)

type MockRunnerService struct{ mock.Mock }

func (m *MockRunnerService) RunDueNow(ctx context.Context, limit int) (*service.RunSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RunSummary), args.Error(1)
}

func (m *MockRunnerService) RunOne(ctx context.Context, revisionID uint64) (service.ApplyResult, error) {
	args := m.Called(ctx, revisionID)
	return args.Get(0).(service.ApplyResult), args.Error(1)
}

func (m *MockRunnerService) Retry(ctx context.Context, revisionID uint64) (*domain.Revision, error) {
	args := m.Called(ctx, revisionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Revision), args.Error(1)
}

type MockSchedulerService struct{ mock.Mock }

func (m *MockSchedulerService) Schedule(ctx context.Context, revisionID uint64, at time.Time, timezone string) (*domain.Revision, error) {
	args := m.Called(ctx, revisionID, at, timezone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Revision), args.Error(1)
}

func (m *MockSchedulerService) Cancel(ctx context.Context, revisionID uint64) (*domain.Revision, error) {
	args := m.Called(ctx, revisionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Revision), args.Error(1)
}

func (m *MockSchedulerService) Reschedule(ctx context.Context, revisionID uint64, at time.Time, timezone string) (*domain.Revision, error) {
	args := m.Called(ctx, revisionID, at, timezone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Revision), args.Error(1)
}

func (m *MockSchedulerService) ListScheduled(ctx context.Context, limit, offset int) ([]domain.Revision, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]domain.Revision), args.Get(1).(int64), args.Error(2)
}

type MockMigrationService struct{ mock.Mock }

func (m *MockMigrationService) MigrateLegacy(ctx context.Context, batchSize int) (*service.MigrationSummary, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MigrationSummary), args.Error(1)
}

func (m *MockMigrationService) NormalizeTimestamps(ctx context.Context) (*service.MigrationSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MigrationSummary), args.Error(1)
}

func (m *MockMigrationService) State(ctx context.Context) (*domain.MigrationState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MigrationState), args.Error(1)
}

type MockSystemRepo struct{ mock.Mock }

func (m *MockSystemRepo) AppendEvent(ctx context.Context, eventType, message, contextJSON string) error {
	args := m.Called(ctx, eventType, message, contextJSON)
	return args.Error(0)
}

func (m *MockSystemRepo) RecentEvents(ctx context.Context, limit int) ([]domain.SystemEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SystemEvent), args.Error(1)
}

func (m *MockSystemRepo) GetMigrationState(ctx context.Context) (*domain.MigrationState, error) {
	args := m.Called(ctx)
	return args.Get(0).(*domain.MigrationState), args.Error(1)
}

func (m *MockSystemRepo) SaveMigrationState(ctx context.Context, state *domain.MigrationState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func newSchedulerRouter(runner *MockRunnerService, sched *MockSchedulerService, mig *MockMigrationService, sys *MockSystemRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSchedulerHandler(runner, sched, mig, sys)
	r := gin.New()
	r.POST("/scheduler/run-due", h.RunDue)
	r.POST("/scheduler/revisions/:id/retry", h.Retry)
	r.GET("/scheduler/revisions", h.ListScheduled)
	r.GET("/scheduler/migration", h.MigrationState)
	return r
}

func TestRunDueReturnsSummaryWithTimestamp(t *testing.T) {
	runner := new(MockRunnerService)
	runner.On("RunDueNow", mock.Anything, 0).Return(&service.RunSummary{
		Due: 2, Processed: 2, Published: 1, Failed: 1, IDs: []uint64{5, 6},
	}, nil)

	r := newSchedulerRouter(runner, new(MockSchedulerService), new(MockMigrationService), new(MockSystemRepo))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scheduler/run-due", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			ExecutedAtUTC string             `json:"executed_at_utc"`
			Summary       service.RunSummary `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Data.ExecutedAtUTC)
	assert.Equal(t, 2, body.Data.Summary.Due)
	assert.Equal(t, []uint64{5, 6}, body.Data.Summary.IDs)
}

func TestRetryMapsNotFailedToConflict(t *testing.T) {
	runner := new(MockRunnerService)
	runner.On("Retry", mock.Anything, uint64(7)).Return(nil, common.ErrNotFailed)

	r := newSchedulerRouter(runner, new(MockSchedulerService), new(MockMigrationService), new(MockSystemRepo))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scheduler/revisions/7/retry", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRetryRejectsBadID(t *testing.T) {
	r := newSchedulerRouter(new(MockRunnerService), new(MockSchedulerService), new(MockMigrationService), new(MockSystemRepo))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scheduler/revisions/abc/retry", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListScheduledPassesPagination(t *testing.T) {
	sched := new(MockSchedulerService)
	sched.On("ListScheduled", mock.Anything, 10, 20).
		Return([]domain.Revision{{ID: 1}}, int64(31), nil)

	r := newSchedulerRouter(new(MockRunnerService), sched, new(MockMigrationService), new(MockSystemRepo))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scheduler/revisions?limit=10&offset=20", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Meta common.Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(31), body.Meta.Total)
	sched.AssertExpectations(t)
}
