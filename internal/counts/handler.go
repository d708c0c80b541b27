package counts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// Handler wires HTTP endpoints for stock counts.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler constructs the counts handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers count routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCountsSubmit))
		r.Get("/current-week", h.currentWeek)
		r.Get("/existing", h.showExisting)
		r.Post("/", h.submit)
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermCountsAdmin))
		r.Get("/comparison", h.comparison)
		r.Delete("/{id}", h.remove)
		r.Put("/items/{id}", h.correctItem)
	})
}

type lineRequest struct {
	ItemID uuid.UUID       `json:"item_id" validate:"required"`
	Boxes  decimal.Decimal `json:"boxes"`
	Loose  decimal.Decimal `json:"loose"`
}

type submitRequest struct {
	LocationID uuid.UUID     `json:"location_id" validate:"required"`
	CountedBy  string        `json:"counted_by" validate:"required,max=100"`
	WeekOf     string        `json:"week_of" validate:"required"`
	Lines      []lineRequest `json:"lines" validate:"dive"`
}

type updateRequest struct {
	CountedBy string        `json:"counted_by" validate:"max=100"`
	Lines     []lineRequest `json:"lines" validate:"dive"`
}

type correctRequest struct {
	Qty decimal.Decimal `json:"qty"`
}

func toLines(reqs []lineRequest) []EntryLine {
	lines := make([]EntryLine, 0, len(reqs))
	for _, l := range reqs {
		lines = append(lines, EntryLine{ItemID: l.ItemID, Boxes: l.Boxes, Loose: l.Loose})
	}
	return lines
}

func (h *Handler) currentWeek(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"week_of": h.service.CurrentWeek().Format(shared.DateLayout)})
}

func (h *Handler) showExisting(w http.ResponseWriter, r *http.Request) {
	locationID, err := httpx.UUIDQuery(r, "location_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	weekOf, err := shared.ParseWeekOf(r.URL.Query().Get("week_of"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	existing, err := h.service.GetExistingCount(r.Context(), httpx.ActorFrom(r), locationID, weekOf)
	if err != nil {
		h.fail(w, "get existing count", err)
		return
	}
	if existing == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusOK, existing)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	weekOf, err := shared.ParseWeekOf(req.WeekOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	count, err := h.service.SubmitCount(r.Context(), httpx.ActorFrom(r), SubmitInput{
		LocationID: req.LocationID,
		CountedBy:  req.CountedBy,
		WeekOf:     weekOf,
		Lines:      toLines(req.Lines),
	})
	if err != nil {
		h.fail(w, "submit count", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, count)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	count, err := h.service.UpdateExistingCount(r.Context(), httpx.ActorFrom(r), UpdateInput{
		CountID:   id,
		CountedBy: req.CountedBy,
		Lines:     toLines(req.Lines),
	})
	if err != nil {
		h.fail(w, "update count", err)
		return
	}
	httpx.JSON(w, http.StatusOK, count)
}

func (h *Handler) comparison(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if asOf.IsZero() {
		asOf = h.service.cfg.Clock()
	}
	view, err := h.service.Comparison(r.Context(), httpx.ActorFrom(r), asOf)
	if err != nil {
		h.fail(w, "count comparison", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCount(r.Context(), httpx.ActorFrom(r), id); err != nil {
		h.fail(w, "delete count", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) correctItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req correctRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CorrectCountItem(r.Context(), httpx.ActorFrom(r), id, req.Qty); err != nil {
		h.fail(w, "correct count item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.Retryable(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
