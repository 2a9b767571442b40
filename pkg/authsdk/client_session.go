package authsdk

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Login signs in and stores the session cookies. A successful login clears
// any earlier session-expired state.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.call(ctx, http.MethodPost, "/v1/auth/login", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.coord.Reset()
	return &out, nil
}

// Logout revokes the session server-side and always clears local cookies.
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/v1/auth/session/logout", nil, nil, http.StatusNoContent)
	c.jar.Reset()
	return err
}

// refresh exchanges the refresh cookie for a new access cookie.
func (c *Client) refresh(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/auth/session/refresh", nil, nil, http.StatusOK)
}

// Me returns the signed-in user. Transient network failures are retried up
// to MeRetries times with linear backoff; authentication failures go through
// the refresh coordinator instead and are never retried here.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	err := c.retryTransient(ctx, func() error {
		return c.authorized(ctx, http.MethodGet, "/v1/auth/me", nil, &out, http.StatusOK)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) retryTransient(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) || attempt >= c.MeRetries {
			return err
		}

		t := time.NewTimer(time.Duration(attempt+1) * c.RetryBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

// isTransient reports whether err is a network-level failure rather than an
// answer from the server.
func isTransient(err error) bool {
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusServiceUnavailable
	}
	return true
}
