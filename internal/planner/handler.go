package planner

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// Handler wires HTTP endpoints for the delivery planner.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler constructs the planner handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers planner routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermPlannerView))
		r.Get("/plans/current", h.currentPlan)
		r.Get("/plans/{id}", h.showPlan)
		r.Get("/plans/{id}/allocation", h.allocation)
		r.Get("/branches/{id}/latest", h.latestForBranch)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPlannerEdit))
		r.Post("/plans/{id}/items", h.addItem)
		r.Put("/items/{id}", h.updateItem)
		r.Delete("/items/{id}", h.removeItem)
		r.Post("/plans/{id}/finalize", h.finalize)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPlannerRevert))
		r.Post("/plans/{id}/revert", h.revert)
	})
}

type addItemRequest struct {
	ItemID       uuid.UUID       `json:"item_id" validate:"required"`
	ToLocationID uuid.UUID       `json:"to_location_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty"`
	Unit         string          `json:"unit" validate:"omitempty,oneof=boxes box pieces piece pcs"`
}

type updateItemRequest struct {
	Qty decimal.Decimal `json:"qty"`
}

func (h *Handler) currentPlan(w http.ResponseWriter, r *http.Request) {
	weekOf := shared.CurrentWeek(time.Now())
	if raw := r.URL.Query().Get("week_of"); raw != "" {
		var err error
		if weekOf, err = shared.ParseWeekOf(raw); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	plan, err := h.service.GetOrCreateDraftPlan(r.Context(), httpx.ActorFrom(r), weekOf)
	if err != nil {
		h.fail(w, "current plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) showPlan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		h.fail(w, "show plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) allocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Allocation(r.Context(), id)
	if err != nil {
		h.fail(w, "plan allocation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) latestForBranch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.LatestFinalizedForBranch(r.Context(), httpx.ActorFrom(r), id)
	if err != nil {
		h.fail(w, "latest finalized plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	planID, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := AddItemInput{PlanID: planID, ItemID: req.ItemID, ToLocationID: req.ToLocationID, Qty: req.Qty}
	if req.Unit != "" {
		if input.Unit, err = units.ParseBaseUnit(req.Unit); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	item, err := h.service.AddPlanItem(r.Context(), httpx.ActorFrom(r), input)
	if err != nil {
		h.fail(w, "add plan item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdatePlanItem(r.Context(), httpx.ActorFrom(r), id, req.Qty)
	if err != nil {
		h.fail(w, "update plan item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemovePlanItem(r.Context(), httpx.ActorFrom(r), id); err != nil {
		h.fail(w, "remove plan item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.FinalizePlan(r.Context(), httpx.ActorFrom(r), id); err != nil {
		h.fail(w, "finalize plan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RevertPlanToDraft(r.Context(), httpx.ActorFrom(r), id); err != nil {
		h.fail(w, "revert plan", err)
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
