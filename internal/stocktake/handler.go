package stocktake

import (
	"context"
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

// Handler wires HTTP endpoints for the stock-take workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock-take handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock-take routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireActor)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/items", h.items)
		r.Get("/{id}/variance-report", h.varianceReport)
		r.Post("/items/{itemID}/count", h.recordCount)
	})
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireRole(shared.RoleManager, shared.RoleAdmin))
		r.Post("/", h.create)
		r.Post("/{id}/start", h.start)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/adjustments", h.createAdjustments)
	})
}

type createRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	Location    string `json:"location" validate:"max=120"`
}

type recordCountRequest struct {
	PhysicalQty float64 `json:"physical_qty" validate:"gte=0"`
	Notes       string  `json:"notes" validate:"max=500"`
}

type stockTakeResponse struct {
	ID                 int64      `json:"id"`
	ReferenceNo        string     `json:"reference_no"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Location           string     `json:"location,omitempty"`
	Status             string     `json:"status"`
	InitiatedBy        int64      `json:"initiated_by"`
	TotalVarianceValue float64    `json:"total_variance_value"`
	InitiatedAt        time.Time  `json:"initiated_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

func toStockTakeResponse(st StockTake) stockTakeResponse {
	return stockTakeResponse{
		ID:                 st.ID,
		ReferenceNo:        st.ReferenceNo,
		Title:              st.Title,
		Description:        st.Description,
		Location:           st.Location,
		Status:             string(st.Status),
		InitiatedBy:        st.InitiatedBy,
		TotalVarianceValue: st.TotalVarianceValue,
		InitiatedAt:        st.InitiatedAt,
		StartedAt:          st.StartedAt,
		CompletedAt:        st.CompletedAt,
		CancelledAt:        st.CancelledAt,
	}
}

type itemResponse struct {
	ID            int64      `json:"id"`
	StockTakeID   int64      `json:"stock_take_id"`
	ItemID        int64      `json:"item_id"`
	ItemName      string     `json:"item_name"`
	Unit          string     `json:"unit"`
	SystemQty     float64    `json:"system_qty"`
	UnitCost      float64    `json:"unit_cost"`
	PhysicalQty   *float64   `json:"physical_qty"`
	VarianceQty   float64    `json:"variance_qty"`
	VarianceValue float64    `json:"variance_value"`
	CountedBy     *int64     `json:"counted_by,omitempty"`
	CountedAt     *time.Time `json:"counted_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:            item.ID,
		StockTakeID:   item.StockTakeID,
		ItemID:        item.ItemID,
		ItemName:      item.ItemName,
		Unit:          string(item.Unit),
		SystemQty:     item.SystemQty,
		UnitCost:      item.UnitCost,
		PhysicalQty:   item.PhysicalQty,
		VarianceQty:   item.VarianceQty,
		VarianceValue: item.VarianceValue,
		CountedBy:     item.CountedBy,
		CountedAt:     item.CountedAt,
		Notes:         item.Notes,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	takes, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]stockTakeResponse, 0, len(takes))
	for _, st := range takes {
		out = append(out, toStockTakeResponse(st))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	st, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockTakeResponse(st))
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := h.service.Items(r.Context(), id)
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

func (h *Handler) varianceReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	report, err := h.service.VarianceReport(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
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
	st, err := h.service.Create(r.Context(), CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Actor:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toStockTakeResponse(st))
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) recordCount(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req recordCountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.RecordCount(r.Context(), itemID, req.PhysicalQty, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) createAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	refs, err := h.service.CreateAdjustments(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"adjustment_refs": refs})
}

type transitionFunc func(ctx context.Context, id int64, actor shared.Actor) (StockTake, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	st, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockTakeResponse(st))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", name+" must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrActorRequired):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("stocktake request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
