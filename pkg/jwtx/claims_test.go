package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/crm/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T, opts ...jwtx.CodecOption) (*jwtx.Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := jwtx.NewCodec(testSecret, append([]jwtx.CodecOption{jwtx.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return codec, clock
}

func TestNewCodec_RejectsShortSecret(t *testing.T) {
	for _, secret := range [][]byte{nil, []byte(""), []byte("too-short")} {
		_, err := jwtx.NewCodec(secret)
		require.ErrorIs(t, err, jwtx.ErrMissingSecret)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, clock := newTestCodec(t, jwtx.WithIssuer("crm-auth"))

	in := jwtx.NewAccessClaims("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZA", jwtx.RoleAdmin)
	token, err := codec.Issue(in, 15*time.Minute)
	require.NoError(t, err)

	out, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, in.Subject, out.Subject)
	require.Equal(t, in.TenantID, out.TenantID)
	require.Equal(t, in.Role, out.Role)
	require.Equal(t, "crm-auth", out.Issuer)
	require.NotEmpty(t, out.ID)
	require.Equal(t, clock.Now(), out.IssuedAt.Time.UTC())
	require.Equal(t, clock.Now().Add(15*time.Minute), out.Expiry().UTC())
	require.True(t, out.IsAdmin())
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	codec, clock := newTestCodec(t)

	token, err := codec.Issue(jwtx.NewAccessClaims("u1", "t1", jwtx.RoleMember), time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute - time.Second)
	_, err = codec.Verify(token)
	require.NoError(t, err, "token must verify before its lifetime elapses")

	clock.Advance(time.Second)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired, "token must be expired exactly at exp")

	clock.Advance(time.Hour)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestCodec_IssueTruncatesToSeconds(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 900_000_000, time.UTC)}
	codec, err := jwtx.NewCodec(testSecret, jwtx.WithClock(clock.Now))
	require.NoError(t, err)

	token, err := codec.Issue(jwtx.NewAccessClaims("u1", "t1", jwtx.RoleMember), time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired, "a token must never outlive its lifetime")
}

func TestCodec_IssueWithExpiryMatchesExpClaim(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 900_000_000, time.UTC)}
	codec, err := jwtx.NewCodec(testSecret, jwtx.WithClock(clock.Now))
	require.NoError(t, err)

	token, exp, err := codec.IssueWithExpiry(jwtx.NewAccessClaims("u1", "t1", jwtx.RoleMember), time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC), exp)

	out, err := codec.Verify(token)
	require.NoError(t, err)
	require.True(t, exp.Equal(out.Expiry()))
}

func TestCodec_Tampering(t *testing.T) {
	codec, _ := newTestCodec(t)
	token, err := codec.Issue(jwtx.NewAccessClaims("u1", "t1", jwtx.RoleMember), time.Minute)
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, err := jwtx.NewCodec([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)
		_, err = other.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("modified payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)

		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				IssuedAt:  jwt.NewNumericDate(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
				ExpiresAt: jwt.NewNumericDate(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
			},
			TenantID: "t1",
			Role:     jwtx.RoleAdmin,
		}).SignedString([]byte("attacker-secret-attacker-secret!"))
		require.NoError(t, err)

		spliced := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]
		_, err = codec.Verify(spliced)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("garbage", func(t *testing.T) {
		for _, s := range []string{"", "abc", "a.b.c", token + "x."} {
			_, err := codec.Verify(s)
			require.Error(t, err, "input %q", s)
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
			TenantID:         "t1",
			Role:             jwtx.RoleAdmin,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(unsigned)
		require.Error(t, err)
	})
}

func TestCodec_IssuerMismatch(t *testing.T) {
	a, _ := newTestCodec(t, jwtx.WithIssuer("a"))
	b, _ := newTestCodec(t, jwtx.WithIssuer("b"))

	token, err := a.Issue(jwtx.NewAccessClaims("u1", "t1", jwtx.RoleMember), time.Minute)
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestCodec_IssueValidation(t *testing.T) {
	codec, _ := newTestCodec(t)

	_, err := codec.Issue(jwtx.NewAccessClaims("u1", "t1", jwtx.RoleMember), 0)
	require.Error(t, err)

	_, err = codec.Issue(jwtx.NewAccessClaims("", "t1", jwtx.RoleMember), time.Minute)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)

	_, err = codec.Issue(jwtx.NewAccessClaims("u1", "", jwtx.RoleMember), time.Minute)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)

	_, err = codec.Issue(jwtx.NewAccessClaims("u1", "t1", "owner"), time.Minute)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
}
