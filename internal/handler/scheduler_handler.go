package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/internal/service"
)

// SchedulerHandler exposes the trigger and inspection surfaces
type SchedulerHandler struct {
	runner    service.RunnerService
	scheduler service.SchedulerService
	migration service.MigrationService
	systems   repository.SystemRepository
}

func NewSchedulerHandler(
	runner service.RunnerService,
	scheduler service.SchedulerService,
	migration service.MigrationService,
	systems repository.SystemRepository,
) *SchedulerHandler {
	return &SchedulerHandler{runner: runner, scheduler: scheduler, migration: migration, systems: systems}
}

// RunDue godoc
// @Summary Process all currently due revisions
// @Tags scheduler
// @Produce json
// @Param key query string true "Cron key"
// @Param limit query int false "Batch limit override"
// @Success 200 {object} common.Response
// @Failure 403 {object} common.Response
// @Router /scheduler/run-due [post]
func (h *SchedulerHandler) RunDue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	summary, err := h.runner.RunDueNow(c.Request.Context(), limit)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{
		"executed_at_utc": time.Now().UTC().Format(time.RFC3339),
		"summary":         summary,
	})
}

// RunOne godoc
// @Summary Process a single scheduled revision immediately
// @Tags scheduler
// @Produce json
// @Param id path int true "Revision ID"
// @Success 200 {object} common.Response
// @Failure 404 {object} common.Response
// @Failure 409 {object} common.Response
// @Router /scheduler/revisions/{id}/run [post]
func (h *SchedulerHandler) RunOne(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	result, err := h.runner.RunOne(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"result": result})
}

// Retry godoc
// @Summary Requeue a failed revision for immediate processing
// @Tags scheduler
// @Produce json
// @Param id path int true "Revision ID"
// @Success 200 {object} common.Response
// @Failure 404 {object} common.Response
// @Failure 409 {object} common.Response
// @Router /scheduler/revisions/{id}/retry [post]
func (h *SchedulerHandler) Retry(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	rev, err := h.runner.Retry(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, rev)
}

// ListScheduled godoc
// @Summary List scheduled revisions, soonest first
// @Tags scheduler
// @Produce json
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} common.Response
// @Router /scheduler/revisions [get]
func (h *SchedulerHandler) ListScheduled(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	revs, total, err := h.scheduler.ListScheduled(c.Request.Context(), limit, offset)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, revs, &common.Meta{Total: total, Limit: limit, Offset: offset})
}

// MigrationState godoc
// @Summary Report cumulative legacy-migration progress
// @Tags scheduler
// @Produce json
// @Success 200 {object} common.Response
// @Router /scheduler/migration [get]
func (h *SchedulerHandler) MigrationState(c *gin.Context) {
	state, err := h.migration.State(c.Request.Context())
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, state)
}

// RunMigration godoc
// @Summary Run one migration batch over legacy revision rows
// @Tags scheduler
// @Produce json
// @Param key query string true "Cron key"
// @Param batch query int false "Batch size (1-500)" default(200)
// @Success 200 {object} common.Response
// @Router /scheduler/migration/run [post]
func (h *SchedulerHandler) RunMigration(c *gin.Context) {
	batch, _ := strconv.Atoi(c.DefaultQuery("batch", "0"))

	summary, err := h.migration.MigrateLegacy(c.Request.Context(), batch)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, summary)
}

// Events godoc
// @Summary List recent operational events, newest first
// @Tags scheduler
// @Produce json
// @Param limit query int false "Max entries" default(100)
// @Success 200 {object} common.Response
// @Router /scheduler/events [get]
func (h *SchedulerHandler) Events(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	events, err := h.systems.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, events)
}

func parseID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, common.ErrInvalidInput
	}
	return id, nil
}
