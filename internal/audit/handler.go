package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/shared"
)

// Handler exposes the audit timeline over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermAuditView))
		r.Get("/", h.timeline)
	})
}

type entryResponse struct {
	ID       int64          `json:"id"`
	ActorID  string         `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

type timelineResponse struct {
	Entries []entryResponse `json:"entries"`
	Paging  PagingInfo      `json:"paging"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	query := TimelineQuery{
		Page:     atoiDefault(r.URL.Query().Get("page"), 0),
		PageSize: atoiDefault(r.URL.Query().Get("pageSize"), 0),
	}
	query.Actor = r.URL.Query().Get("actor")
	query.Entity = r.URL.Query().Get("entity")
	query.EntityID = r.URL.Query().Get("entityId")
	query.Action = r.URL.Query().Get("action")
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC 3339")
			return
		}
		query.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC 3339")
			return
		}
		query.To = t
	}

	result, err := h.service.Timeline(r.Context(), query)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries := make([]entryResponse, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = entryResponse{
			ID: e.ID, ActorID: e.ActorID, Action: e.Action,
			Entity: e.Entity, EntityID: e.EntityID, Meta: e.Meta, At: e.At,
		}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Entries: entries, Paging: result.Paging})
}

func atoiDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
