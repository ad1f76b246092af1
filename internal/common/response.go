package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the standard API envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination info for list responses
type Meta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit,omitempty"`
	Offset int   `json:"offset,omitempty"`
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func ErrorResponse(c *gin.Context, err error) {
	status, code := getErrorCode(err)
	c.JSON(status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: err.Error()},
	})
}

func ErrorResponseWithStatus(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

func getErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, ErrInvalidParent):
		return http.StatusBadRequest, "INVALID_PARENT"
	case errors.Is(err, ErrMissingParent):
		return http.StatusConflict, "MISSING_PARENT"
	case errors.Is(err, ErrPastSchedule):
		return http.StatusBadRequest, "PAST_SCHEDULE"
	case errors.Is(err, ErrScheduleConflict):
		return http.StatusConflict, "SCHEDULE_CONFLICT"
	case errors.Is(err, ErrNotScheduled):
		return http.StatusConflict, "NOT_SCHEDULED"
	case errors.Is(err, ErrNotFailed):
		return http.StatusConflict, "NOT_FAILED"
	case errors.Is(err, ErrLockUnavailable):
		return http.StatusConflict, "LOCKED"
	case errors.Is(err, ErrIntegrityCheck):
		return http.StatusInternalServerError, "INTEGRITY_CHECK_FAILED"
	case errors.Is(err, ErrProcessing):
		return http.StatusInternalServerError, "PROCESSING_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
