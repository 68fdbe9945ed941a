package handler

import (
	"context"
	"net/http"

	"github.com/unclebandit/leadflow-backend/internal/service"
	"github.com/unclebandit/leadflow-backend/internal/workflow"
)

type Ticker interface {
	ResumeDelays(ctx context.Context) (workflow.ResumeSummary, error)
	ProcessSlots(ctx context.Context) (service.SlotTickSummary, error)
}

// TickHandler exposes the periodic passes over HTTP so an external scheduler
// can drive them.
type TickHandler struct {
	Ticks Ticker
}

func (h *TickHandler) ResumeDelays(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ticks.ResumeDelays(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

func (h *TickHandler) ProcessSlots(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ticks.ProcessSlots(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
