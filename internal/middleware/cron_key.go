package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sanar/product-scheduler/internal/common"
)

// CronKey guards trigger endpoints with a shared secret. The key is
// accepted from the query string or the X-Cron-Key header. An
// unconfigured key disables the endpoint entirely rather than leaving
// it open.
func CronKey(configuredKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if configuredKey == "" {
			common.ErrorResponseWithStatus(c, http.StatusServiceUnavailable,
				"CRON_KEY_UNSET", "cron key is not configured")
			c.Abort()
			return
		}

		provided := c.Query("key")
		if provided == "" {
			provided = c.GetHeader("X-Cron-Key")
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(configuredKey)) != 1 {
			common.ErrorResponseWithStatus(c, http.StatusForbidden,
				"CRON_KEY_INVALID", "invalid cron key")
			c.Abort()
			return
		}

		c.Next()
	}
}
