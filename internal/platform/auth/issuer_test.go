package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Credentials{Username: "clinic-admin", Password: "s3cret-pass"}, testSigningKey, "intake", time.Hour)
	require.NoError(t, err)
	return a
}

func TestNewAuthenticator_RequiresConfiguration(t *testing.T) {
	_, err := NewAuthenticator(Credentials{Username: "a", Password: "b"}, nil, "", time.Hour)
	assert.ErrorIs(t, err, ErrNoSigningKey)

	_, err = NewAuthenticator(Credentials{Username: "a"}, testSigningKey, "", time.Hour)
	assert.Error(t, err)

	_, err = NewAuthenticator(Credentials{Username: "a", Password: "b"}, testSigningKey, "", 0)
	assert.Error(t, err)
}

func TestLogin_WrongCredentials(t *testing.T) {
	a := newTestAuthenticator(t)
	for _, tc := range [][2]string{{"clinic-admin", "nope"}, {"admin", "s3cret-pass"}, {"", ""}} {
		tok, ok, err := a.Login(tc[0], tc[1])
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, tok)
	}
}

func TestLogin_TokenAcceptedByMiddleware(t *testing.T) {
	a := newTestAuthenticator(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	tok, ok, err := a.Login("clinic-admin", "s3cret-pass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixed.Add(time.Hour), tok.ExpiresAt)
	assert.Equal(t, RoleAdmin, tok.Role)

	// re-issue with the real clock so the middleware accepts it
	a.now = time.Now
	tok, _, err = a.Login("clinic-admin", "s3cret-pass")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "intake"})
	h := RequireRole(RoleAdmin)(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	require.NoError(t, mw(h)(c))
}
