package httpx

import "net/http"

// RequireIdentity is the handler boundary for protected routes. Requests that
// reach it without a verified identity, including those whose token failed
// verification at the Gate, get the uniform unauthenticated response.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeUnauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin is like RequireIdentity but also demands the administrator role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeUnauthenticated(w)
			return
		}
		if !id.IsAdmin() {
			writeForbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
