package masterdata

import (
	"context"
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

// Handler manages master data endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/items", h.listItems)
		r.Get("/items/{id}", h.showItem)
		r.Get("/locations", h.listLocations)
		r.Post("/items/{id}/favorite", h.toggleFavorite)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermItemsEdit))
		r.Post("/items", h.createItem)
		r.Put("/items/{id}", h.updateItem)
		r.Post("/items/{id}/active", h.toggleActive)
	})
}

type itemRequest struct {
	SKU            string          `json:"sku" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	Category       string          `json:"category" validate:"max=100"`
	BaseUnit       string          `json:"base_unit" validate:"omitempty,oneof=boxes pieces pcs"`
	PiecesPerBox   int             `json:"pieces_per_box" validate:"gte=0"`
	LooseUnitLabel string          `json:"loose_unit_label" validate:"max=32"`
	ReorderPoint   decimal.Decimal `json:"reorder_point"`
	TargetStock    decimal.Decimal `json:"target_stock"`
}

func (req itemRequest) input() ItemInput {
	return ItemInput{
		SKU:            req.SKU,
		Name:           req.Name,
		Category:       req.Category,
		BaseUnit:       req.BaseUnit,
		PiecesPerBox:   req.PiecesPerBox,
		LooseUnitLabel: req.LooseUnitLabel,
		ReorderPoint:   req.ReorderPoint,
		TargetStock:    req.TargetStock,
	}
}

type flagRequest struct {
	Value bool `json:"value"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.Items(r.Context(), ItemFilter{
		ActiveOnly: q.Get("include_inactive") != "true",
		Category:   q.Get("category"),
		Search:     q.Get("q"),
	})
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Item(r.Context(), id)
	if err != nil {
		h.fail(w, "show item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.service.ListLocations(r.Context(), LocationFilter{
		Type:       LocationType(r.URL.Query().Get("type")),
		ActiveOnly: r.URL.Query().Get("include_inactive") != "true",
	})
	if err != nil {
		h.fail(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, locs)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), httpx.ActorFrom(r), req.input())
	if err != nil {
		h.fail(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), httpx.ActorFrom(r), id, req.input())
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.SetItemActive)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.SetItemFavorite)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, apply func(context.Context, shared.Actor, uuid.UUID, bool) error) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req flagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := apply(r.Context(), httpx.ActorFrom(r), id, req.Value); err != nil {
		h.fail(w, "toggle item flag", err)
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
