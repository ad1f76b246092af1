package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/sanar/product-scheduler/internal/handler"
	"github.com/sanar/product-scheduler/internal/middleware"
)

// Setup registers all API routes under /api/v1
func Setup(
	r *gin.Engine,
	revisions *handler.RevisionHandler,
	scheduler *handler.SchedulerHandler,
	cronKey string,
) {
	v1 := r.Group("/api/v1")

	rev := v1.Group("/revisions")
	{
		rev.POST("", revisions.Create)
		rev.GET("/:id", revisions.Get)
		rev.POST("/:id/schedule", revisions.Schedule)
		rev.POST("/:id/reschedule", revisions.Reschedule)
		rev.POST("/:id/cancel", revisions.Cancel)
	}

	v1.GET("/products/:id/revisions", revisions.ListByProduct)

	sch := v1.Group("/scheduler")
	{
		sch.GET("/revisions", scheduler.ListScheduled)
		sch.GET("/migration", scheduler.MigrationState)
		sch.GET("/events", scheduler.Events)
		sch.POST("/revisions/:id/retry", scheduler.Retry)

		// Trigger surfaces are cron-key guarded.
		guarded := sch.Group("", middleware.CronKey(cronKey))
		{
			guarded.POST("/run-due", scheduler.RunDue)
			guarded.POST("/revisions/:id/run", scheduler.RunOne)
			guarded.POST("/migration/run", scheduler.RunMigration)
		}
	}
}
