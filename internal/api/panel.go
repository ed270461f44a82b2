package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/debate-panel/internal/domain"
	"github.com/ashureev/debate-panel/internal/identity"
)

// PanelHandler exposes the conversation controller to the browser panel.
type PanelHandler struct {
	*Handler
	// limit wraps mutating routes; nil disables throttling.
	limit func(http.Handler) http.Handler
}

// NewPanelHandler creates a panel handler. limit may be nil.
func NewPanelHandler(base *Handler, limit func(http.Handler) http.Handler) *PanelHandler {
	return &PanelHandler{Handler: base, limit: limit}
}

// PanelState is the full view rendered by the panel.
type PanelState struct {
	Session          domain.Session       `json:"session"`
	SelectedBusiness *domain.Business     `json:"selected_business"`
	Agents           []domain.AgentStatus `json:"agents"`
}

// RegisterRoutes registers panel routes.
func (h *PanelHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/panel", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/agents", h.GetAgents)
		r.Get("/businesses", h.GetBusinesses)

		r.Group(func(r chi.Router) {
			if h.limit != nil {
				r.Use(h.limit)
			}
			r.Post("/select", h.Select)
			r.Post("/start", h.Start)
			r.Post("/pause", h.command("pause", h.ctrl.Pause))
			r.Post("/resume", h.command("resume", h.ctrl.Resume))
			r.Post("/stop", h.command("stop", h.ctrl.Stop))
			r.Post("/reset", h.Reset)
		})
	})
}

func (h *PanelHandler) state() PanelState {
	snap := h.ctrl.Snapshot()
	return PanelState{
		Session:          snap,
		SelectedBusiness: h.ctrl.Selected(),
		Agents:           domain.AgentStatuses(snap.Phase),
	}
}

// GetState returns the session snapshot, selection and roster.
func (h *PanelHandler) GetState(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.state())
}

// GetAgents returns the roster with activity flags.
func (h *PanelHandler) GetAgents(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.ctrl.Agents(),
	})
}

// GetBusinesses returns the business catalog, loading it on first use or
// when refresh=1 is given.
func (h *PanelHandler) GetBusinesses(w http.ResponseWriter, r *http.Request) {
	list := h.ctrl.Businesses()
	if len(list) == 0 || r.URL.Query().Get("refresh") == "1" {
		loaded, err := h.ctrl.LoadBusinesses(r.Context())
		if err != nil {
			Error(w, statusFor(err), err.Error())
			return
		}
		list = loaded
	}

	var selectedID string
	if b := h.ctrl.Selected(); b != nil {
		selectedID = b.ID
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"businesses":           list,
		"selected_business_id": selectedID,
	})
}

type selectRequest struct {
	BusinessID any `json:"business_id"`
}

// Select chooses the business for the next start.
func (h *PanelHandler) Select(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req selectRequest
	if err := dec.Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var id string
	switch v := req.BusinessID.(type) {
	case nil:
	case string:
		id = v
	case json.Number:
		id = v.String()
	default:
		Error(w, http.StatusBadRequest, fmt.Sprintf("business_id must be a string or number, got %T", v))
		return
	}

	if _, err := h.ctrl.Select(id); err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	h.logger.Info("Business selected",
		"operator_id", identity.OperatorIDFromContext(r.Context()),
		"business_id", id,
	)
	JSON(w, http.StatusOK, h.state())
}

// Start begins a conversation for the selected business.
func (h *PanelHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.command("start", h.ctrl.StartSelected)(w, r)
}

// Reset clears the local session.
func (h *PanelHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Reset()
	h.logger.Info("Panel command", "command", "reset", "operator_id", identity.OperatorIDFromContext(r.Context()))
	JSON(w, http.StatusOK, h.state())
}

// command adapts a controller command to an HTTP handler. The command runs
// detached from request cancellation so a closed tab cannot abandon a start
// the backend already accepted.
func (h *PanelHandler) command(name string, run func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID := identity.OperatorIDFromContext(r.Context())
		ctx := context.WithoutCancel(r.Context())

		if err := run(ctx); err != nil {
			h.logger.Info("Panel command failed", "command", name, "operator_id", operatorID, "error", err)
			Error(w, statusFor(err), err.Error())
			return
		}
		h.logger.Info("Panel command", "command", name, "operator_id", operatorID)
		JSON(w, http.StatusOK, h.state())
	}
}
