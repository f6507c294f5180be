package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only-0123")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return tokenStr
}

func validClaims(subject string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{RoleAdmin},
	}
}

// authorize runs the middleware against one request carrying header.
func authorize(header string, next echo.HandlerFunc) error {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())
	return JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(next)(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	assertUnauthorized(t, authorize("", okHandler))
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertUnauthorized(t, authorize(tt.header, okHandler))
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	called := false
	err := authorize("Bearer "+createTestToken(t, validClaims("user-123"), testSigningKey), func(c echo.Context) error {
		called = true
		return okHandler(c)
	})
	require.NoError(t, err)
	assert.True(t, called, "handler called")
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	assertUnauthorized(t, authorize("Bearer "+createTestToken(t, claims, testSigningKey), okHandler))
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	err := authorize("Bearer "+createTestToken(t, validClaims("clinic-admin"), testSigningKey), func(c echo.Context) error {
		ctx := c.Request().Context()
		assert.Equal(t, "clinic-admin", UserIDFromContext(ctx))
		assert.Equal(t, []string{RoleAdmin}, RolesFromContext(ctx))
		return okHandler(c)
	})
	require.NoError(t, err)
}

func TestJWTMiddleware_RejectsWrongKey(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("clinic-admin"), []byte("some-other-secret-of-sufficient-size"))
	assertUnauthorized(t, authorize("Bearer "+tokenStr, okHandler))
}

func TestJWTMiddleware_RequiresExpiry(t *testing.T) {
	tokenStr := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "clinic-admin"}}, testSigningKey)
	assert.Error(t, authorize("Bearer "+tokenStr, okHandler), "token without exp")
}

func TestJWTMiddleware_PanicsWithoutKey(t *testing.T) {
	assert.Panics(t, func() { JWTMiddleware(JWTConfig{}) })
}

func TestJWTMiddleware_SkipperBypassesAuth(t *testing.T) {
	e := echo.New()
	called := false
	e.Use(JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper}))
	e.GET("/health", func(c echo.Context) error {
		called = true
		return okHandler(c)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called, "public path bypasses auth")
}
