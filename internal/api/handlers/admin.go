package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/printer"
	"github.com/orrn/printdispatch/internal/ticket"
)

// TokenIssuer signs per-restaurant worker tokens.
type TokenIssuer interface {
	IssueWorkerToken(restaurantID int64) (string, time.Time, error)
}

type WorkerTokenRequest struct {
	RestaurantID int64 `json:"restaurant_id" binding:"required,gt=0"`
}

type WorkerTokenResponse struct {
	RestaurantID int64     `json:"restaurant_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type PrinterView struct {
	printer.Info
	Thermal        bool `json:"thermal"`
	FatallyOffline bool `json:"fatally_offline"`
}

type PrintersResponse struct {
	Count     int                `json:"count"`
	Printers  []PrinterView      `json:"printers"`
	Default   string             `json:"default"`
	Selection *printer.Selection `json:"selection,omitempty"`
	Warning   string             `json:"warning,omitempty"`
}

type TestPrintRequest struct {
	PrinterName string `json:"printer_name"`
	Message     string `json:"message" binding:"max=500"`
}

type AdminHandler struct {
	tokens    TokenIssuer
	directory *printer.Directory
	selector  *printer.Selector
	width     int
	log       *zap.Logger
}

func NewAdminHandler(tokens TokenIssuer, dir *printer.Directory, width int, log *zap.Logger) *AdminHandler {
	if width <= 0 {
		width = ticket.DefaultWidth
	}
	return &AdminHandler{
		tokens:    tokens,
		directory: dir,
		selector:  printer.NewSelector(dir),
		width:     width,
		log:       log,
	}
}

func (h *AdminHandler) IssueWorkerToken(c *gin.Context) {
	var req WorkerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	token, expires, err := h.tokens.IssueWorkerToken(req.RestaurantID)
	if err != nil {
		h.log.Error("failed to issue worker token", zap.Int64("restaurant_id", req.RestaurantID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "token_error", "failed to issue token")
		return
	}

	h.log.Info("worker token issued", zap.Int64("restaurant_id", req.RestaurantID), zap.Time("expires_at", expires))
	c.JSON(http.StatusCreated, WorkerTokenResponse{RestaurantID: req.RestaurantID, Token: token, ExpiresAt: expires})
}

// ListPrinters shows what this host can print to and which printer an
// unhinted direct-mode job would currently land on.
func (h *AdminHandler) ListPrinters(c *gin.Context) {
	ctx := c.Request.Context()

	infos, err := h.directory.ListPrinters(ctx)
	if err != nil {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "printer_error", "failed to list printers")
		return
	}

	resp := PrintersResponse{Count: len(infos), Printers: make([]PrinterView, 0, len(infos))}
	for _, info := range infos {
		resp.Printers = append(resp.Printers, PrinterView{
			Info:           info,
			Thermal:        h.directory.Classify(info.Name),
			FatallyOffline: h.directory.IsFatal(info.Status),
		})
	}
	if def, err := h.directory.DefaultPrinter(ctx); err == nil {
		resp.Default = def
	}

	sel, err := h.selector.Select(ctx, c.Query("requested"))
	if err != nil {
		resp.Warning = err.Error()
	} else {
		resp.Selection = &sel
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) TestPrint(c *gin.Context) {
	var req TestPrintRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	sel, err := h.selector.Select(ctx, req.PrinterName)
	if err != nil {
		if errors.Is(err, printer.ErrNoPrinterAvailable) {
			respondError(c, http.StatusServiceUnavailable, "no_printer", err.Error())
			return
		}
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "printer_error", "failed to select printer")
		return
	}
	if sel.Fallback() {
		h.log.Warn("test print using fallback printer",
			zap.String("requested", sel.Requested),
			zap.String("printer", sel.Name),
			zap.String("reason", string(sel.Reason)))
	}

	if err := h.directory.Write(ctx, sel.Name, h.testPage(sel, req.Message)); err != nil {
		h.log.Error("test print failed", zap.String("printer", sel.Name), zap.Error(err))
		respondError(c, http.StatusBadGateway, "print_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"printer": sel.Name, "reason": sel.Reason})
}

func (h *AdminHandler) testPage(sel printer.Selection, message string) []byte {
	if message == "" {
		message = "Printer test page"
	}
	lines := ticket.Banner(h.width, "TEST PRINT")
	lines = append(lines,
		ticket.LabelValue(h.width, "Printer:", ticket.Fold(sel.Name)),
		ticket.LabelValue(h.width, "Selected by:", string(sel.Reason)),
		ticket.LabelValue(h.width, "Time:", time.Now().UTC().Format("2006-01-02 15:04")),
		ticket.Rule(h.width, '-'),
	)
	lines = append(lines, ticket.Wrap(ticket.Fold(message), h.width)...)
	lines = append(lines, ticket.Rule(h.width, '='))

	doc := ticket.Document{Title: "TEST", Body: strings.Join(lines, "\n") + "\n"}
	return ticket.Encode(doc, ticket.KindKitchen)
}
