package audit

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// Handler exposes the audit timeline.
type Handler struct {
	service *Service
	logger  *slog.Logger
	rbac    rbac.Middleware
}

// NewHandler creates an audit handler.
func NewHandler(service *Service, logger *slog.Logger, rbac rbac.Middleware) *Handler {
	return &Handler{service: service, logger: logger, rbac: rbac}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.PermAuditView))
	r.Get("/", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), httpx.ActorFrom(r), filters)
	if err != nil {
		if shared.Retryable(err) {
			h.logger.Error("audit timeline", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// parseFilters reads from/to as dates; to is inclusive of its whole day.
func parseFilters(r *http.Request) (TimelineFilters, error) {
	var f TimelineFilters
	var err error
	if f.From, err = httpx.DateQuery(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = httpx.DateQuery(r, "to"); err != nil {
		return f, err
	}
	if !f.To.IsZero() {
		f.To = f.To.AddDate(0, 0, 1)
	}
	if f.ActorID, err = httpx.UUIDQuery(r, "actor"); err != nil {
		return f, err
	}
	if f.Page, err = httpx.IntQuery(r, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = httpx.IntQuery(r, "page_size"); err != nil {
		return f, err
	}
	q := r.URL.Query()
	f.Entity = strings.TrimSpace(q.Get("entity"))
	f.Action = strings.TrimSpace(q.Get("action"))
	return f, nil
}
