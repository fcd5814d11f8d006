package groups

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/shared"
)

// Handler exposes role-group management over HTTP.
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

// MountRoutes registers role-group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermGroupsView, shared.PermGroupsEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermGroupsEdit))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type groupResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DisplayName   string `json:"displayName"`
	Description   string `json:"description,omitempty"`
	RequiresOne   bool   `json:"requiresOne"`
	DefaultRoleID string `json:"defaultRoleId,omitempty"`
	System        bool   `json:"system"`
}

func toResponse(group authz.RoleGroup) groupResponse {
	return groupResponse{
		ID:            group.ID,
		Name:          group.Name,
		DisplayName:   group.DisplayName,
		Description:   group.Description,
		RequiresOne:   group.RequiresOne,
		DefaultRoleID: group.DefaultRoleID,
		System:        group.System,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupResponse, len(groups))
	for i, group := range groups {
		out[i] = toResponse(group)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

type createGroupRequest struct {
	Name          string `json:"name" validate:"required"`
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	RequiresOne   bool   `json:"requiresOne"`
	DefaultRoleID string `json:"defaultRoleId"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		RequiresOne:   req.RequiresOne,
		DefaultRoleID: req.DefaultRoleID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

type updateGroupRequest struct {
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	RequiresOne   bool   `json:"requiresOne"`
	DefaultRoleID string `json:"defaultRoleId"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateInput{
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		RequiresOne:   req.RequiresOne,
		DefaultRoleID: req.DefaultRoleID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
