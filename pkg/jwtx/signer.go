package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted length of the HMAC signing secret.
const MinSecretLength = 32

// ErrMissingSecret reports a signing secret that is empty or too short. It is
// a configuration error: a process without a secret must not serve
// authenticated routes.
var ErrMissingSecret = errors.New("jwtx: signing secret missing or too short")

// Issuer signs access tokens and reports the exp it stamped.
type Issuer interface {
	IssueWithExpiry(claims Claims, lifetime time.Duration) (string, time.Time, error)
}

// Codec signs and verifies HS256 access tokens with a server-held secret.
// Issuing and verifying share the same clock.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock overrides the clock used for both issuing and verifying.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// WithIssuer sets the iss claim stamped on issued tokens and required on
// verified ones.
func WithIssuer(iss string) CodecOption {
	return func(c *Codec) { c.issuer = iss }
}

// NewCodec returns a Codec for secret. It fails with ErrMissingSecret when
// the secret is shorter than MinSecretLength.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrMissingSecret
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue stamps iat, exp, iss and jti onto claims and signs them. The issue
// time is truncated to whole seconds, the precision of the exp claim, so a
// token never outlives lifetime.
func (c *Codec) Issue(claims Claims, lifetime time.Duration) (string, error) {
	token, _, err := c.IssueWithExpiry(claims, lifetime)
	return token, err
}

// IssueWithExpiry is Issue that also returns the exp claim, for callers that
// mirror it into a cookie or response body.
func (c *Codec) IssueWithExpiry(claims Claims, lifetime time.Duration) (string, time.Time, error) {
	if lifetime <= 0 {
		return "", time.Time{}, fmt.Errorf("jwtx: lifetime must be positive, got %s", lifetime)
	}

	now := c.now().UTC().Truncate(time.Second)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(lifetime))
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}
	if claims.ID == "" {
		claims.ID = NewJTI()
	}
	if err := claims.validateIdentity(); err != nil {
		return "", time.Time{}, err
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := t.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}
