package domain

import "time"

// RefreshCredential is the stored half of a refresh credential. The
// plaintext secret is handed to the client once and only its salted hash is
// kept.
type RefreshCredential struct {
	ID         string
	UserID     string
	SecretHash string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the credential can no longer be redeemed at now.
func (c RefreshCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
