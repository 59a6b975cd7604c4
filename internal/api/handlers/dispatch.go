package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdispatch/internal/core"
)

type DispatchHandler struct {
	dispatcher *core.Dispatcher
}

func NewDispatchHandler(d *core.Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: d}
}

// Orders always answers 200 with the dispatch report once the event is
// well-formed; print problems are warnings in the report.
func (h *DispatchHandler) Orders(c *gin.Context) {
	var ev core.OrderEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.dispatcher.DispatchOrder(c.Request.Context(), ev))
}

func (h *DispatchHandler) Payments(c *gin.Context) {
	var ev core.PaymentEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.dispatcher.DispatchPayment(c.Request.Context(), ev))
}
