package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/internal/auth/store"
	"github.com/aussiebroadwan/crm/pkg/authsdk"
	"github.com/aussiebroadwan/crm/pkg/httpx"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

// writeServiceError maps service errors onto the API error taxonomy. Internal
// detail is logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *service.ValidationError
		ge *service.GuardError
	)

	switch {
	case errors.As(err, &ve):
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Code:    authsdk.ErrorCodeValidation,
			Message: ve.Error(),
			Details: map[string]string{ve.Field: ve.Message},
		})
	case errors.As(err, &ge):
		authsdk.NewAPIError(http.StatusForbidden, authsdk.ErrorCodeForbidden, ge.Reason).WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrUnauthenticated):
		authsdk.ErrUnauthenticated.WriteError(w)
	case errors.Is(err, service.ErrForbidden):
		authsdk.ErrForbidden.WriteError(w)
	case errors.Is(err, store.ErrNotFound):
		authsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, service.ErrConflict):
		authsdk.ErrConflict.WriteError(w)
	case errors.Is(err, service.ErrTransientIO):
		slogx.FromContext(r.Context()).Error("storage failure", "err", err)
		authsdk.ErrServiceUnavailable.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("unhandled error", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
