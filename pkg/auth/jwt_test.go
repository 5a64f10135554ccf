package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"predex.com/pkg/xerr"
)

func newVerifier(t *testing.T) *HS256 {
	t.Helper()
	v, err := NewHS256(Config{Secret: "s3cret", Issuer: "predex", TTL: time.Hour})
	require.NoError(t, err)
	return v
}

func TestIssueVerify(t *testing.T) {
	v := newVerifier(t)
	tok, err := v.Issue("u1", RoleAdmin)
	require.NoError(t, err)

	id, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestVerify_Rejects(t *testing.T) {
	v := newVerifier(t)

	other, _ := NewHS256(Config{Secret: "other", Issuer: "predex"})
	forged, err := other.Issue("u1", RoleUser)
	require.NoError(t, err)

	wrongIss, _ := NewHS256(Config{Secret: "s3cret", Issuer: "evil"})
	badIss, err := wrongIss.Issue("u1", RoleUser)
	require.NoError(t, err)

	expired := newVerifier(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("u1", RoleUser)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"forged":    forged,
		"wrong iss": badIss,
		"expired":   old,
		"alg none":  none,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			assert.True(t, xerr.Is(err, xerr.Unauthorized), "got %v", err)
		})
	}
}

func TestVerify_DefaultsRoleAndSubject(t *testing.T) {
	v := newVerifier(t)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u9", Issuer: "predex"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	id, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u9", Role: RoleUser}, id)
}

func TestNewHS256_EmptySecret(t *testing.T) {
	_, err := NewHS256(Config{})
	assert.Error(t, err)
}
