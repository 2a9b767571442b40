/*
Package authsdk provides a client SDK for the CRM authentication service and
the wire types shared with the server.

# Overview

The service keeps both session credentials in HTTP-only cookies: a short-lived
access token and a long-lived refresh credential scoped to the session
endpoints. Client mirrors a browser by holding those cookies in a jar.

	client := authsdk.NewClient("https://crm.example.com")

	// One-time setup
	_, err := client.Bootstrap(ctx, bootstrapToken, authsdk.BootstrapRequest{
		TenantName:    "Acme",
		AdminEmail:    "root@acme.test",
		AdminPassword: "correct-horse",
	})

	// Sign in
	sess, err := client.Login(ctx, authsdk.LoginRequest{
		Email:    "root@acme.test",
		Password: "correct-horse",
	})

	// Authorized calls
	me, err := client.Me(ctx)
	users, err := client.ListUsers(ctx)

# Automatic Refresh

Every authorized call runs through a Coordinator. When a call fails with
401 "unauthenticated", the coordinator exchanges the refresh cookie for a new
access cookie and replays the call once. Concurrent failures share a single
refresh: the first starts it, the others wait for it, and all of them replay
after it settles.

If the refresh fails or exceeds DefaultRefreshTimeout, the cookies are
cleared and every waiting call returns ErrSessionExpired. Later calls fail
fast with the same error until Login succeeds again; a failed refresh is never
retried on its own.

	if errors.Is(err, authsdk.ErrSessionExpired) {
		// show the login form
	}

# Error Handling

Server errors are returned as *APIError carrying the HTTP status and the
error code from the body:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeForbidden {
		fmt.Println(apiErr.Description) // e.g. "cannot deactivate the only active administrator"
	}

Me additionally retries transient network failures a few times with linear
backoff before giving up.

# Thread Safety

Client and Coordinator are safe for concurrent use.
*/
package authsdk
