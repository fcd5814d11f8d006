package flags

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/shared"
)

// Handler exposes feature flag management over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers flag routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermFlagsView, shared.PermFlagsEdit))
		r.Get("/", h.list)
		r.Get("/{name}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermFlagsEdit))
		r.Post("/", h.create)
		r.Put("/{name}", h.set)
		r.Delete("/{name}", h.delete)
	})
}

type flagResponse struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toResponse(flag Flag) flagResponse {
	return flagResponse{
		Name:        flag.Name,
		Description: flag.Description,
		Enabled:     flag.Enabled,
		UpdatedAt:   flag.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	flags, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]flagResponse, len(flags))
	for i, flag := range flags {
		out[i] = toResponse(flag)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	flag, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(flag))
}

type createFlagRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), req.Name, req.Description, req.Enabled)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

type setFlagRequest struct {
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	var req setFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	updated, err := h.service.Set(r.Context(), chi.URLParam(r, "name"), req.Description, req.Enabled)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
