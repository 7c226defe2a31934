// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// RespondError maps well-known errors to HTTP responses using RFC7807.
// Domain handlers translate module errors they care about first and fall
// back here for everything else.
func RespondError(w http.ResponseWriter, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr):
		Problem(w, http.StatusBadRequest, "Validation Failed", verr.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrPrivilege):
		Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrActorRequired):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "Actor identity required.")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
