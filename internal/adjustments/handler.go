package adjustments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/platform/httpx"
	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// Handler wires HTTP endpoints for stock adjustments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the adjustments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers adjustment routes. Any known actor may raise and
// inspect adjustments; reviewing is restricted to approval roles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireActor)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleManager, shared.RoleAdmin))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
}

type createRequest struct {
	ItemID        int64   `json:"item_id" validate:"required"`
	QuantityAfter float64 `json:"quantity_after" validate:"gte=0"`
	Reason        string  `json:"reason" validate:"required,max=500"`
}

type reviewRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type adjustmentResponse struct {
	ID             int64      `json:"id"`
	ReferenceNo    string     `json:"reference_no"`
	ItemID         int64      `json:"item_id"`
	ItemName       string     `json:"item_name"`
	AdjustmentType string     `json:"adjustment_type"`
	QuantityBefore float64    `json:"quantity_before"`
	QuantityAfter  float64    `json:"quantity_after"`
	QuantityDelta  float64    `json:"quantity_delta"`
	UnitCost       float64    `json:"unit_cost"`
	Reason         string     `json:"reason"`
	SourceType     string     `json:"source_type"`
	SourceRef      string     `json:"source_ref,omitempty"`
	Status         string     `json:"status"`
	RequestedBy    int64      `json:"requested_by"`
	RequestedAt    time.Time  `json:"requested_at"`
	ReviewedBy     *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote     string     `json:"review_note,omitempty"`
}

func toAdjustmentResponse(adj StockAdjustment) adjustmentResponse {
	return adjustmentResponse{
		ID:             adj.ID,
		ReferenceNo:    adj.ReferenceNo,
		ItemID:         adj.ItemID,
		ItemName:       adj.ItemName,
		AdjustmentType: string(adj.AdjustmentType),
		QuantityBefore: adj.QuantityBefore,
		QuantityAfter:  adj.QuantityAfter,
		QuantityDelta:  adj.QuantityDelta,
		UnitCost:       adj.UnitCost,
		Reason:         adj.Reason,
		SourceType:     string(adj.SourceType),
		SourceRef:      adj.SourceRef,
		Status:         string(adj.Status),
		RequestedBy:    adj.RequestedBy,
		RequestedAt:    adj.RequestedAt,
		ReviewedBy:     adj.ReviewedBy,
		ReviewedAt:     adj.ReviewedAt,
		ReviewNote:     adj.ReviewNote,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:    Status(r.URL.Query().Get("status")),
		SourceRef: r.URL.Query().Get("source_ref"),
	}
	if itemID := r.URL.Query().Get("item_id"); itemID != "" {
		if n, err := strconv.ParseInt(itemID, 10, 64); err == nil {
			filter.ItemID = n
		}
	}
	adjs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]adjustmentResponse, 0, len(adjs))
	for _, adj := range adjs {
		out = append(out, toAdjustmentResponse(adj))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	adj, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adj))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.Create(r.Context(), CreateInput{
		ItemID:        req.ItemID,
		QuantityAfter: req.QuantityAfter,
		Reason:        req.Reason,
		Actor:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(adj))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.service.Reject)
}

func (h *Handler) reviewAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, note string, actor shared.Actor) (StockAdjustment, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := fn(r.Context(), id, req.Note, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adj))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSelfApproval):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrReasonRequired), errors.Is(err, ErrNoChange):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "inventory item not found")
	default:
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrInvalidState) &&
			!errors.Is(err, shared.ErrPrivilege) && !errors.Is(err, shared.ErrActorRequired) {
			h.logger.Error("adjustment request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
