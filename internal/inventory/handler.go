package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/levels", h.listLevels)
		r.Get("/low-stock", h.listLowStock)
		r.Get("/history", h.listHistory)
		r.Get("/warehouse/{itemID}/on-hand", h.warehouseOnHand)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInventoryPost))
		r.Post("/receipts", h.handleReceive)
		r.Post("/deliveries", h.handleDelivery)
		r.Post("/adjustments", h.handleAdjustment)
	})
}

type lineRequest struct {
	ItemID uuid.UUID       `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
	Unit   string          `json:"unit" validate:"omitempty,oneof=boxes box pieces piece pcs"`
}

func (l lineRequest) line() (Line, error) {
	line := Line{ItemID: l.ItemID, Qty: l.Qty}
	if l.Unit != "" {
		unit, err := units.ParseBaseUnit(l.Unit)
		if err != nil {
			return Line{}, err
		}
		line.Unit = unit
	}
	return line, nil
}

type postingRequest struct {
	LocationID uuid.UUID     `json:"location_id"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Note       string        `json:"note" validate:"max=500"`
}

type adjustmentRequest struct {
	LocationID uuid.UUID   `json:"location_id" validate:"required"`
	Line       lineRequest `json:"line"`
	Direction  string      `json:"direction" validate:"required,oneof=add remove"`
	Reason     string      `json:"reason" validate:"required,max=200"`
	Note       string      `json:"note" validate:"max=500"`
}

func (h *Handler) listLevels(w http.ResponseWriter, r *http.Request) {
	locationID, err := httpx.UUIDQuery(r, "location_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.UUIDQuery(r, "item_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	rows, err := h.service.Levels(r.Context(), LevelFilter{
		LocationType: masterdata.LocationType(q.Get("location_type")),
		LocationID:   locationID,
		ItemID:       itemID,
		Category:     q.Get("category"),
		Search:       q.Get("q"),
		LowOnly:      q.Get("low") == "true",
	})
	if err != nil {
		h.fail(w, "list levels", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	if err != nil {
		h.fail(w, "list low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	filter := HistoryFilter{Type: TransactionType(r.URL.Query().Get("type"))}
	var err error
	if filter.LocationID, err = httpx.UUIDQuery(r, "location_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ItemID, err = httpx.UUIDQuery(r, "item_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.From, err = httpx.DateQuery(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.DateQuery(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1).Add(-1)
	}
	if filter.Limit, err = httpx.IntQuery(r, "limit"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	txs, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.fail(w, "list history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) warehouseOnHand(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.UUIDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := h.service.WarehouseOnHand(r.Context(), itemID)
	if err != nil {
		h.fail(w, "warehouse on hand", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": itemID, "on_hand": qty})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	req, lines, ok := h.decodePosting(w, r)
	if !ok {
		return
	}
	posting, err := h.service.RecordReceive(r.Context(), httpx.ActorFrom(r), ReceiveInput{
		ToLocationID: req.LocationID,
		Lines:        lines,
		Note:         req.Note,
		RequestKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "record receive", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posting)
}

func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	req, lines, ok := h.decodePosting(w, r)
	if !ok {
		return
	}
	posting, err := h.service.RecordDelivery(r.Context(), httpx.ActorFrom(r), DeliveryInput{
		ToLocationID: req.LocationID,
		Lines:        lines,
		Note:         req.Note,
		RequestKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "record delivery", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posting)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := req.Line.line()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	posting, err := h.service.RecordAdjustment(r.Context(), httpx.ActorFrom(r), AdjustmentInput{
		LocationID: req.LocationID,
		Line:       line,
		Direction:  Direction(req.Direction),
		Reason:     req.Reason,
		Note:       req.Note,
		RequestKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "record adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posting)
}

func (h *Handler) decodePosting(w http.ResponseWriter, r *http.Request) (postingRequest, []Line, bool) {
	var req postingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return req, nil, false
	}
	lines := make([]Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		line, err := l.line()
		if err != nil {
			httpx.RespondError(w, err)
			return req, nil, false
		}
		lines = append(lines, line)
	}
	return req, lines, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.Retryable(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
