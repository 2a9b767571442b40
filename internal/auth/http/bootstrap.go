package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/pkg/authsdk"
	"github.com/aussiebroadwan/crm/pkg/httpx"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles first-run setup.
//
//	@Summary		Bootstrap the first tenant
//	@Description	Creates the first tenant and its administrator. Only available when a bootstrap token is configured, and only until a tenant exists.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token"
//	@Param			request				body		authsdk.BootstrapRequest		true	"Tenant and administrator"
//	@Success		201					{object}	authsdk.BootstrapResponse		"Created tenant and administrator IDs"
//	@Failure		400					{object}	authsdk.ValidationErrorResponse	"Invalid request body or validation failed"
//	@Failure		401					{object}	authsdk.ErrorResponse			"Missing or invalid bootstrap token, or already bootstrapped"
//	@Failure		404					{object}	authsdk.ErrorResponse			"Bootstrap not enabled"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("bootstrap requested")

	if h.BootstrapService.Token == "" {
		authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeNotFound, "bootstrap endpoint is not enabled").WriteError(w)
		return
	}

	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized", "bootstrap token is required in X-Bootstrap-Token header").WriteError(w)
		return
	}

	var req authsdk.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if errs := req.Validate(); errs != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Code:    authsdk.ErrorCodeValidation,
			Message: "validation failed for some fields",
			Details: errs,
		})
		return
	}

	res, err := h.BootstrapService.Bootstrap(r.Context(), token, domain.BootstrapData{
		TenantName:     req.TenantName,
		AdminEmail:     req.AdminEmail,
		AdminPassword:  req.AdminPassword,
		AdminFirstName: req.AdminFirstName,
		AdminLastName:  req.AdminLastName,
	})
	switch {
	case errors.Is(err, service.ErrBootstrapAlready):
		authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized", "system has already been bootstrapped").WriteError(w)
		return
	case errors.Is(err, service.ErrBootstrapUnauthorized):
		authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized", "invalid bootstrap token").WriteError(w)
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{
		TenantID:    res.TenantID,
		AdminUserID: res.AdminUserID,
	})
}
