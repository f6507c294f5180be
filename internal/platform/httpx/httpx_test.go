package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

type form struct {
	UserID string `json:"userId"`
}

func newContext(method, target, body string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestDecodeStrict_Accepts(t *testing.T) {
	var f form
	require.NoError(t, DecodeStrict(newContext(http.MethodPost, "/", `{"userId":"P-1"}`), &f))
	assert.Equal(t, "P-1", f.UserID)
}

func TestDecodeStrict_RejectsUnknownFields(t *testing.T) {
	var f form
	err := DecodeStrict(newContext(http.MethodPost, "/", `{"userId":"P-1","isAdmin":true}`), &f)
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Contains(t, appErr.Message, "isAdmin")
}

func TestDecodeStrict_RejectsEmptyAndTrailing(t *testing.T) {
	var f form
	assert.Error(t, DecodeStrict(newContext(http.MethodPost, "/", ``), &f), "empty body")
	assert.Error(t, DecodeStrict(newContext(http.MethodPost, "/", `{"userId":"a"}{"userId":"b"}`), &f), "trailing data")
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange(newContext(http.MethodGet, "/?startDate=2026-01-01&endDate=2026-01-31", ""))
	require.NoError(t, err)
	assert.True(t, r.Contains(time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)), "bare end date covers the whole day")
	assert.False(t, r.Contains(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))
}

func TestParseDateRange_Invalid(t *testing.T) {
	_, err := ParseDateRange(newContext(http.MethodGet, "/?startDate=yesterday", ""))
	assert.Error(t, err, "unparseable date")
	_, err = ParseDateRange(newContext(http.MethodGet, "/?startDate=2026-02-01&endDate=2026-01-01", ""))
	assert.Error(t, err, "inverted range")
}

func TestDateRange_ZeroContainsEverything(t *testing.T) {
	var r DateRange
	assert.True(t, r.IsZero())
	assert.True(t, r.Contains(time.Now()))
}
