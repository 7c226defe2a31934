package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/creamery-pos/creamery-pos/internal/platform/httpx"
	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireActor)
		r.Get("/items", h.listItems)
		r.Get("/items/{id}", h.getItem)
		r.Get("/items/{id}/movements", h.listMovements)
		r.Post("/consume", h.consume)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleManager, shared.RoleAdmin))
		r.Post("/replenish", h.replenish)
	})
}

type itemResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Unit         string  `json:"unit"`
	AvailableQty float64 `json:"available_qty"`
	CostPerUnit  float64 `json:"cost_per_unit"`
	PricePerUnit float64 `json:"price_per_unit"`
	ReorderLevel float64 `json:"reorder_level"`
	Active       bool    `json:"active"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:           item.ID,
		Name:         item.Name,
		Category:     item.Category,
		Unit:         string(item.Unit),
		AvailableQty: item.AvailableQty,
		CostPerUnit:  item.CostPerUnit,
		PricePerUnit: item.PricePerUnit,
		ReorderLevel: item.ReorderLevel,
		Active:       item.Active,
	}
}

type movementResponse struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	Type      string    `json:"movement_type"`
	QtyDelta  float64   `json:"qty_delta"`
	QtyBefore float64   `json:"qty_before"`
	QtyAfter  float64   `json:"qty_after"`
	UnitCost  float64   `json:"unit_cost"`
	RefType   string    `json:"reference_type"`
	RefID     string    `json:"reference_id"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:        m.ID,
		ItemID:    m.ItemID,
		Type:      string(m.Type),
		QtyDelta:  m.QtyDelta,
		QtyBefore: m.QtyBefore,
		QtyAfter:  m.QtyAfter,
		UnitCost:  m.UnitCost,
		RefType:   m.RefType,
		RefID:     m.RefID,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
		Notes:     m.Notes,
	}
}

type consumeRequest struct {
	ItemID       int64   `json:"item_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	MovementType string  `json:"movement_type" validate:"required,oneof=SALE PRODUCTION_CONSUME"`
	RefType      string  `json:"reference_type" validate:"required,max=40"`
	RefID        string  `json:"reference_id" validate:"required,max=64"`
	Notes        string  `json:"notes" validate:"max=500"`
}

type replenishRequest struct {
	ItemID       int64   `json:"item_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	MovementType string  `json:"movement_type" validate:"omitempty,oneof=REPLENISH PRODUCTION_OUTPUT"`
	ReferenceNo  string  `json:"reference_no" validate:"required,max=64"`
	Notes        string  `json:"notes" validate:"max=500"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	items, err := h.service.ListItems(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "item id must be numeric")
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "item id must be numeric")
		return
	}
	filter := MovementFilter{ItemID: id}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.Consume(r.Context(), ConsumeInput{
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		Type:     MovementType(req.MovementType),
		RefType:  req.RefType,
		RefID:    req.RefID,
		Actor:    shared.ActorFromContext(r.Context()),
		Notes:    req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) replenish(w http.ResponseWriter, r *http.Request) {
	var req replenishRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.Replenish(r.Context(), ReplenishInput{
		ItemID:      req.ItemID,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		Type:        MovementType(req.MovementType),
		ReferenceNo: req.ReferenceNo,
		Actor:       shared.ActorFromContext(r.Context()),
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", "Requested quantity exceeds available stock.")
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Inventory item not found.")
	case errors.Is(err, ErrItemInactive):
		httpx.Problem(w, http.StatusConflict, "Item Inactive", "Inventory item is inactive.")
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
