package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// PermissionsHandler reports the acting user's role and permissions.
type PermissionsHandler struct {
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(service *Service) *PermissionsHandler {
	return &PermissionsHandler{service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.me)
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrNoActor)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     actor.ID,
		"role":        actor.Role,
		"permissions": h.service.EffectivePermissions(actor),
	})
}
