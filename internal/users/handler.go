package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/shared"
)

// Handler exposes user assignment and resolution endpoints over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/{id}/assignments", h.getAssignments)
		r.Get("/{id}/effective-permissions", h.effectivePermissions)
		r.Get("/{id}/check", h.check)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(shared.PermUsersEdit))
		r.Put("/{id}/roles", h.setRoles)
		r.Put("/{id}/permissions", h.setDirectPermissions)
	})
}

type effectivePermissionResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Resources   []string `json:"resources"`
	Actions     []string `json:"actions"`
	Category    string   `json:"category,omitempty"`
	Direct      bool     `json:"direct"`
	ViaRoles    []string `json:"viaRoles"`
}

func toEffectiveResponse(perms []authz.EffectivePermission) []effectivePermissionResponse {
	out := make([]effectivePermissionResponse, len(perms))
	for i, ep := range perms {
		via := ep.ViaRoles
		if via == nil {
			via = []string{}
		}
		out[i] = effectivePermissionResponse{
			ID:          ep.Permission.ID,
			Name:        ep.Permission.Name,
			Description: ep.Permission.Description,
			Resources:   ep.Permission.Resources,
			Actions:     ep.Permission.Actions,
			Category:    ep.Permission.Category,
			Direct:      ep.Direct,
			ViaRoles:    via,
		}
	}
	return out
}

func (h *Handler) getAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.GetAssignments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ResolveEffectivePermissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEffectiveResponse(perms))
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	action := r.URL.Query().Get("action")
	if resource == "" || action == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resource and action query parameters are required")
		return
	}
	allowed, err := h.service.HasPermission(r.Context(), chi.URLParam(r, "id"), resource, action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type setRolesRequest struct {
	RoleIDs []string `json:"roleIds"`
}

func (h *Handler) setRoles(w http.ResponseWriter, r *http.Request) {
	var req setRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	diff, err := h.service.SetRoles(r.Context(), chi.URLParam(r, "id"), req.RoleIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, diff)
}

type setPermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

func (h *Handler) setDirectPermissions(w http.ResponseWriter, r *http.Request) {
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	diff, err := h.service.SetDirectPermissions(r.Context(), chi.URLParam(r, "id"), req.PermissionIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, diff)
}
