package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdispatch/internal/api/middleware"
	"github.com/orrn/printdispatch/internal/core"
	"github.com/orrn/printdispatch/internal/ticket"
)

const unknownClient = "unknown"

// PendingJob is the worker's view of a job. Content is the raw printer byte
// stream, base64 encoded.
type PendingJob struct {
	ID              string         `json:"id"`
	JobType         ticket.Kind    `json:"job_type"`
	Status          core.JobStatus `json:"status"`
	Content         []byte         `json:"content"`
	ContentEncoding string         `json:"content_encoding"`
	PrinterName     string         `json:"printer_name"`
	RestaurantName  string         `json:"restaurant_name"`
	OrderNumber     string         `json:"order_number"`
	CreatedAt       time.Time      `json:"created_at"`
	RetryCount      int            `json:"retry_count"`
}

type PendingResponse struct {
	Count int          `json:"count"`
	Jobs  []PendingJob `json:"jobs"`
}

type StartPrintingRequest struct {
	ClientID string `json:"client_id" binding:"max=128"`
}

type MarkFailedRequest struct {
	Error string `json:"error" binding:"max=2000"`
}

type TransitionResponse struct {
	ID     string         `json:"id"`
	Status core.JobStatus `json:"status"`
}

type PrintJobHandler struct {
	queue *core.Queue
}

func NewPrintJobHandler(queue *core.Queue) *PrintJobHandler {
	return &PrintJobHandler{queue: queue}
}

func (h *PrintJobHandler) Pending(c *gin.Context) {
	jobs, err := h.queue.FetchPending(c.Request.Context(), middleware.RestaurantID(c))
	if err != nil {
		respondJobError(c, err)
		return
	}

	resp := PendingResponse{Count: len(jobs), Jobs: make([]PendingJob, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, PendingJob{
			ID:              j.ID,
			JobType:         j.JobType,
			Status:          j.Status,
			Content:         j.Content,
			ContentEncoding: "base64",
			PrinterName:     j.PrinterName,
			RestaurantName:  j.RestaurantName,
			OrderNumber:     j.OrderNumber,
			CreatedAt:       j.CreatedAt,
			RetryCount:      j.RetryCount,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PrintJobHandler) StartPrinting(c *gin.Context) {
	var req StartPrintingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	if req.ClientID == "" {
		req.ClientID = unknownClient
	}

	id := c.Param("id")
	if err := h.queue.Claim(c.Request.Context(), middleware.RestaurantID(c), id, req.ClientID); err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, TransitionResponse{ID: id, Status: core.StatusPrinting})
}

func (h *PrintJobHandler) MarkCompleted(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.Complete(c.Request.Context(), middleware.RestaurantID(c), id); err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, TransitionResponse{ID: id, Status: core.StatusCompleted})
}

func (h *PrintJobHandler) MarkFailed(c *gin.Context) {
	var req MarkFailedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	id := c.Param("id")
	if err := h.queue.Fail(c.Request.Context(), middleware.RestaurantID(c), id, req.Error); err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, TransitionResponse{ID: id, Status: core.StatusFailed})
}

func (h *PrintJobHandler) Retry(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.Retry(c.Request.Context(), middleware.RestaurantID(c), id); err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, TransitionResponse{ID: id, Status: core.StatusPending})
}

func (h *PrintJobHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context(), middleware.RestaurantID(c))
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
