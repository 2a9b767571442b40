package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/pkg/authsdk"
	"github.com/aussiebroadwan/crm/pkg/httpx"
)

// UsersHandler serves tenant user management.
type UsersHandler struct {
	Users *service.UserService
}

func actorFrom(r *http.Request) service.Actor {
	id, _ := httpx.IdentityFromContext(r.Context())
	return service.Actor{UserID: id.UserID, TenantID: id.TenantID, Role: domain.Role(id.Role)}
}

// HandleList lists the users of the caller's tenant.
//
//	@Summary		List users
//	@Tags			Users
//	@Security		CookieAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ListUsersResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse	"Administrator role required"
//	@Router			/v1/users [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.ListUsersResponse{Users: make([]authsdk.User, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, toUserResponse(u))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet returns one user. "me" names the caller.
//
//	@Summary		Get user
//	@Description	Members may only read their own record. Users of other tenants are reported as not found.
//	@Tags			Users
//	@Security		CookieAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID or \"me\""
//	@Success		200	{object}	authsdk.User
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Router			/v1/users/{id} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := r.PathValue("id")
	if id == "me" {
		id = actor.UserID
	}

	u, err := h.Users.Get(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleCreate adds a user to the caller's tenant.
//
//	@Summary		Create user
//	@Tags			Users
//	@Security		CookieAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateUserRequest	true	"New user"
//	@Success		201		{object}	authsdk.User
//	@Failure		400		{object}	authsdk.ValidationErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already taken"
//	@Router			/v1/users [post].
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.Users.Create(r.Context(), actorFrom(r), service.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarURL: req.AvatarURL,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

// HandleUpdateMe changes the caller's own profile.
//
//	@Summary		Update own profile
//	@Tags			Users
//	@Security		CookieAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.UpdateProfileRequest	true	"Fields to change"
//	@Success		200		{object}	authsdk.User
//	@Failure		400		{object}	authsdk.ValidationErrorResponse
//	@Failure		409		{object}	authsdk.ErrorResponse
//	@Router			/v1/users/me [patch].
func (h *UsersHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.Users.UpdateSelf(r.Context(), actorFrom(r), toProfile(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleUpdate lets an administrator change any user of their tenant.
//
//	@Summary		Update user
//	@Description	Role and active changes may not leave the tenant without an active administrator, and administrators may not demote or deactivate themselves.
//	@Tags			Users
//	@Security		CookieAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"User ID"
//	@Param			request	body		authsdk.UpdateUserRequest	true	"Fields to change"
//	@Success		200		{object}	authsdk.User
//	@Failure		400		{object}	authsdk.ValidationErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse	"Not an administrator, or the change would lock the tenant out"
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Router			/v1/users/{id} [patch].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	upd := domain.UserAdminUpdate{
		UserProfile: toProfile(req.UpdateProfileRequest),
		Active:      req.Active,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		upd.Role = &role
	}

	u, err := h.Users.AdminUpdate(r.Context(), actorFrom(r), r.PathValue("id"), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func toProfile(req authsdk.UpdateProfileRequest) domain.UserProfile {
	return domain.UserProfile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	}
}
