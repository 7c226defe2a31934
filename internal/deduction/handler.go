package deduction

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/creamery-pos/creamery-pos/internal/platform/httpx"
	"github.com/creamery-pos/creamery-pos/internal/recipes"
	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// Handler exposes the deduction engine to the sale flow.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs the deduction handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers deduction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireActor)
		r.Post("/", h.deduct)
	})
}

type deductRequest struct {
	MenuItem    string `json:"menu_item" validate:"required,max=120"`
	Quantity    int    `json:"quantity" validate:"required,gte=1"`
	Category    string `json:"category" validate:"max=60"`
	ReferenceID string `json:"reference_id" validate:"max=64"`
}

func (h *Handler) deduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ref := Reference{Type: "pos_sale", ID: req.ReferenceID}
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	actor := shared.ActorFromContext(r.Context())

	result, err := h.engine.DeductComposite(r.Context(), req.MenuItem, req.Quantity, ref, actor)
	if errors.Is(err, recipes.ErrRecipeNotFound) && req.Category != "" {
		result, err = h.engine.DeductByCategory(r.Context(), req.MenuItem, req.Category, req.Quantity, ref, actor)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recipes.ErrRecipeNotFound), errors.Is(err, recipes.ErrNoCategoryRule):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidUnits):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrActorRequired):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("deduction request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
