package report

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// Handler manages report endpoints.
type Handler struct {
	builder *Builder
	logger  *slog.Logger
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler creates a report handler.
func NewHandler(builder *Builder, logger *slog.Logger, rbac rbac.Middleware) *Handler {
	return &Handler{builder: builder, logger: logger, rbac: rbac, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.PermReportsView))
	r.Get("/weekly", h.weekly)
	r.Get("/inventory.xlsx", h.inventoryWorkbook)
}

// weekly defaults to the week ending at the most recent Sunday.
func (h *Handler) weekly(w http.ResponseWriter, r *http.Request) {
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if from.IsZero() {
		from = shared.CurrentWeek(h.now()).AddDate(0, 0, -7)
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 7)
	}
	out, err := h.builder.Weekly(r.Context(), from, to)
	if err != nil {
		h.fail(w, "weekly report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) inventoryWorkbook(w http.ResponseWriter, r *http.Request) {
	rows, err := h.builder.WarehouseSnapshot(r.Context())
	if err != nil {
		h.fail(w, "inventory snapshot", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteInventoryWorkbook(&buf, rows); err != nil {
		h.logger.Error("write inventory workbook", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=inventory-"+h.now().Format(shared.DateLayout)+".xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.Retryable(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
