package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/api/handlers"
	"github.com/orrn/printdispatch/internal/api/middleware"
	"github.com/orrn/printdispatch/internal/core"
	"github.com/orrn/printdispatch/internal/printer"
)

type Deps struct {
	Auth       *middleware.AuthMiddleware
	Queue      *core.Queue
	Dispatcher *core.Dispatcher
	Directory  *printer.Directory
	PageWidth  int
	Log        *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(d.Log), middleware.Logger(d.Log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jobs := handlers.NewPrintJobHandler(d.Queue)
	worker := r.Group("/print-jobs", d.Auth.RequireWorker())
	{
		worker.GET("/pending", jobs.Pending)
		worker.GET("/stats", jobs.Stats)
		worker.POST("/:id/start_printing", jobs.StartPrinting)
		worker.POST("/:id/mark_completed", jobs.MarkCompleted)
		worker.POST("/:id/mark_failed", jobs.MarkFailed)
		worker.POST("/:id/retry", jobs.Retry)
	}

	internal := r.Group("", d.Auth.RequireAdminKey())

	dispatch := handlers.NewDispatchHandler(d.Dispatcher)
	internal.POST("/dispatch/orders", dispatch.Orders)
	internal.POST("/dispatch/payments", dispatch.Payments)

	admin := handlers.NewAdminHandler(d.Auth, d.Directory, d.PageWidth, d.Log)
	internal.POST("/admin/worker-tokens", admin.IssueWorkerToken)
	internal.GET("/admin/printers", admin.ListPrinters)
	internal.POST("/admin/printers/test", admin.TestPrint)

	return r
}
