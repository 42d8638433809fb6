package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"walletmirror/internal/service"
)

// StatusComputer derives the portfolio view on demand.
type StatusComputer interface {
	ComputeStatus(ctx context.Context) (service.PortfolioView, error)
}

type StatusHandler struct {
	Status StatusComputer
	Logger *zap.Logger
}

func (h *StatusHandler) Register(r *gin.Engine) {
	r.GET("/status", h.status)
}

func (h *StatusHandler) status(c *gin.Context) {
	if h.Status == nil {
		Error(c, http.StatusInternalServerError, "status service unavailable")
		return
	}
	view, err := h.Status.ComputeStatus(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("status computation failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error())
		return
	}
	Ok(c, view)
}
