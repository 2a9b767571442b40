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

// SessionHandler serves login, refresh, logout and whoami.
type SessionHandler struct {
	Sessions *service.SessionService
	Cookies  CookieConfig
}

// HandleLogin signs a user in.
//
//	@Summary		Log in
//	@Description	Verifies email and password and sets the access_token and refresh_token cookies. Unknown email and wrong password produce the same response.
//	@Tags			Session
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.SessionResponse	"Signed in; cookies set"
//	@Success		303		"Already signed in; redirected to the landing path"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Too many attempts"
//	@Router			/v1/auth/login [post].
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	sess, err := h.Sessions.Login(r.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, h.Cookies.access(sess.AccessToken, sess.AccessExpiresAt))
	http.SetCookie(w, h.Cookies.refresh(sess.RefreshSecret, sess.RefreshExpiresAt))

	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		User:            toUserResponse(sess.User),
		AccessExpiresAt: sess.AccessExpiresAt,
	})
}

// HandleRefresh exchanges the refresh cookie for a new access cookie.
//
//	@Summary		Refresh the access token
//	@Description	Reads the refresh_token cookie and sets a new access_token cookie. The refresh cookie is not rotated. On failure both cookies are cleared.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse	"New access cookie set"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Refresh credential missing, unknown or expired"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Storage unavailable"
//	@Router			/v1/auth/session/refresh [post].
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	secret := refreshSecret(r)
	if secret == "" {
		h.Cookies.clearSession(w)
		authsdk.ErrRefreshRejected.WriteError(w)
		return
	}

	got, err := h.Sessions.Refresh(r.Context(), secret)
	if err != nil {
		if errors.Is(err, service.ErrTransientIO) {
			writeServiceError(w, r, err)
			return
		}
		l.Info("refresh rejected", "err", err)
		h.Cookies.clearSession(w)
		authsdk.ErrRefreshRejected.WriteError(w)
		return
	}

	http.SetCookie(w, h.Cookies.access(got.AccessToken, got.AccessExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		User:            toUserResponse(got.User),
		AccessExpiresAt: got.AccessExpiresAt,
	})
}

// HandleLogout ends the session.
//
//	@Summary		Log out
//	@Description	Revokes the refresh credential if it can be found and always clears both cookies.
//	@Tags			Session
//	@Success		204	"Signed out"
//	@Router			/v1/auth/session/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context(), refreshSecret(r)); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to revoke refresh credential on logout", "err", err)
	}
	h.Cookies.clearSession(w)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the signed-in user.
//
//	@Summary		Current user
//	@Description	Returns the sanitized record of the user the access token belongs to.
//	@Tags			Session
//	@Security		CookieAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.User			"Current user"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or expired access token"
//	@Router			/v1/auth/me [get].
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IdentityFromContext(r.Context())

	u, err := h.Sessions.Whoami(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func toUserResponse(u domain.User) authsdk.User {
	return authsdk.User{
		ID:        u.ID,
		TenantID:  u.TenantID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.AvatarURL,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
