package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patient-analysis"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Params
	}{
		{"defaults", "", Params{Limit: DefaultLimit}},
		{"custom values", "?limit=50&offset=10", Params{Limit: 50, Offset: 10}},
		{"max limit", "?limit=500", Params{Limit: MaxLimit}},
		{"invalid values", "?limit=abc&offset=-5", Params{Limit: DefaultLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paramsFor(t, tt.query))
		})
	}
}

func TestParams_HasMore(t *testing.T) {
	tests := []struct {
		name     string
		p        Params
		returned int
		total    int
		want     bool
	}{
		{"first page of many", Params{Limit: 10, Offset: 0}, 10, 25, true},
		{"last partial page", Params{Limit: 10, Offset: 20}, 5, 25, false},
		{"exact fit", Params{Limit: 10, Offset: 0}, 10, 10, false},
		{"empty", Params{Limit: 10, Offset: 0}, 0, 0, false},
		{"unpaged", Params{}, 3, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.HasMore(tt.returned, tt.total))
		})
	}
}
