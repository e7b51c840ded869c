package handlers

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/toiletmap/toiletmap-api/internal/models"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

var errorDetails atomic.Bool

// ExposeErrorDetails adds the underlying error text to 500 responses.
// Never enable it in production.
func ExposeErrorDetails(enabled bool) {
	errorDetails.Store(enabled)
}

// writeServiceError maps service errors onto the JSON error taxonomy
func writeServiceError(w http.ResponseWriter, err error, notFoundMessage string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		pkghttp.WriteValidationError(w, verr.Issues)
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, notFoundMessage)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Conflicting update")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w)
	case errorDetails.Load():
		pkghttp.WriteErrorWithDetails(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
