package http

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"

	// RefreshCookiePath limits the refresh cookie to the refresh and logout
	// endpoints.
	RefreshCookiePath = "/v1/auth/session"
)

// CookieConfig controls the attributes of the session cookies.
type CookieConfig struct {
	Domain string
	Secure bool
}

func (c CookieConfig) build(name, value, path string, sameSite http.SameSite, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	if !expires.IsZero() {
		ck.Expires = expires.UTC()
		ck.MaxAge = max(int(time.Until(expires).Seconds()), 1)
	}
	return ck
}

func (c CookieConfig) access(token string, expires time.Time) *http.Cookie {
	return c.build(AccessCookieName, token, "/", http.SameSiteLaxMode, expires)
}

func (c CookieConfig) refresh(secret string, expires time.Time) *http.Cookie {
	return c.build(RefreshCookieName, secret, RefreshCookiePath, http.SameSiteStrictMode, expires)
}

func (c CookieConfig) deletion(name, path string, sameSite http.SameSite) *http.Cookie {
	ck := c.build(name, "", path, sameSite, time.Time{})
	ck.Expires = time.Unix(0, 0).UTC()
	ck.MaxAge = -1
	return ck
}

// clearSession expires both session cookies.
func (c CookieConfig) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.deletion(AccessCookieName, "/", http.SameSiteLaxMode))
	http.SetCookie(w, c.deletion(RefreshCookieName, RefreshCookiePath, http.SameSiteStrictMode))
}

func refreshSecret(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
