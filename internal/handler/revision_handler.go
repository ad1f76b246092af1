package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/service"
)

// RevisionHandler manages revision lifecycle endpoints
type RevisionHandler struct {
	revisions service.RevisionService
	scheduler service.SchedulerService
}

func NewRevisionHandler(revisions service.RevisionService, scheduler service.SchedulerService) *RevisionHandler {
	return &RevisionHandler{revisions: revisions, scheduler: scheduler}
}

// CreateRevisionRequest is the create payload. ScheduleAt is optional;
// when present the revision is scheduled in the same call.
type CreateRevisionRequest struct {
	ProductID  uint64                `json:"product_id" binding:"required"`
	Title      *string               `json:"title"`
	Content    *string               `json:"content"`
	Excerpt    *string               `json:"excerpt"`
	Meta       domain.MetaMapPayload `json:"meta"`
	Terms      map[string][]uint64   `json:"terms"`
	ScheduleAt *time.Time            `json:"schedule_at"`
	Timezone   string                `json:"timezone"`
	CreatedBy  uint64                `json:"created_by"`
}

// ScheduleRequest sets or moves the due moment
type ScheduleRequest struct {
	At       time.Time `json:"at" binding:"required"`
	Timezone string    `json:"timezone"`
}

// Create godoc
// @Summary Create a revision, optionally scheduling it in the same call
// @Tags revisions
// @Accept json
// @Produce json
// @Param request body CreateRevisionRequest true "Revision payload"
// @Success 201 {object} common.Response
// @Failure 400 {object} common.Response
// @Failure 409 {object} common.Response
// @Router /revisions [post]
func (h *RevisionHandler) Create(c *gin.Context) {
	var req CreateRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponseWithStatus(c, 400, "INVALID_INPUT", err.Error())
		return
	}

	rev, err := h.revisions.Create(c.Request.Context(), service.CreateRevisionInput{
		ProductID: req.ProductID,
		Title:     req.Title,
		Content:   req.Content,
		Excerpt:   req.Excerpt,
		Meta:      req.Meta,
		Terms:     req.Terms,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	if req.ScheduleAt != nil {
		scheduled, err := h.scheduler.Schedule(c.Request.Context(), rev.ID, *req.ScheduleAt, req.Timezone)
		if err != nil {
			// The draft survives a scheduling rejection; return it with
			// the reason so the caller can pick another slot.
			if errors.Is(err, common.ErrScheduleConflict) || errors.Is(err, common.ErrPastSchedule) {
				status := 409
				if errors.Is(err, common.ErrPastSchedule) {
					status = 400
				}
				c.JSON(status, common.Response{
					Success: false,
					Data:    rev,
					Error:   &common.ErrorInfo{Code: "SCHEDULE_REJECTED", Message: err.Error()},
				})
				return
			}
			common.ErrorResponse(c, err)
			return
		}
		rev = scheduled
	}

	common.CreatedResponse(c, rev)
}

// Get godoc
// @Summary Fetch a revision with its processing log
// @Tags revisions
// @Produce json
// @Param id path int true "Revision ID"
// @Success 200 {object} common.Response
// @Failure 404 {object} common.Response
// @Router /revisions/{id} [get]
func (h *RevisionHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	rev, logs, err := h.revisions.GetWithLogs(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"revision": rev, "logs": logs})
}

// ListByProduct godoc
// @Summary List all revisions of a product
// @Tags revisions
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} common.Response
// @Router /products/{id}/revisions [get]
func (h *RevisionHandler) ListByProduct(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	revs, err := h.revisions.ListByProduct(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, revs)
}

// Schedule godoc
// @Summary Schedule a draft or failed revision
// @Tags revisions
// @Accept json
// @Produce json
// @Param id path int true "Revision ID"
// @Param request body ScheduleRequest true "Due moment"
// @Success 200 {object} common.Response
// @Failure 400 {object} common.Response
// @Failure 409 {object} common.Response
// @Router /revisions/{id}/schedule [post]
func (h *RevisionHandler) Schedule(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponseWithStatus(c, 400, "INVALID_INPUT", err.Error())
		return
	}

	rev, err := h.scheduler.Schedule(c.Request.Context(), id, req.At, req.Timezone)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, rev)
}

// Reschedule godoc
// @Summary Move a scheduled revision to a new moment
// @Tags revisions
// @Accept json
// @Produce json
// @Param id path int true "Revision ID"
// @Param request body ScheduleRequest true "New due moment"
// @Success 200 {object} common.Response
// @Failure 409 {object} common.Response
// @Router /revisions/{id}/reschedule [post]
func (h *RevisionHandler) Reschedule(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponseWithStatus(c, 400, "INVALID_INPUT", err.Error())
		return
	}

	rev, err := h.scheduler.Reschedule(c.Request.Context(), id, req.At, req.Timezone)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, rev)
}

// Cancel godoc
// @Summary Cancel a scheduled revision
// @Tags revisions
// @Produce json
// @Param id path int true "Revision ID"
// @Success 200 {object} common.Response
// @Failure 409 {object} common.Response
// @Router /revisions/{id}/cancel [post]
func (h *RevisionHandler) Cancel(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	rev, err := h.scheduler.Cancel(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	common.SuccessResponse(c, rev)
}
