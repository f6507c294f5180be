// Package httpx holds request decoding and response helpers shared by the
// intake handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

// Envelope is the success body of every form endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a {success:true} envelope.
func OK(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// DecodeStrict decodes the JSON request body into v. Unknown fields, trailing
// data and an empty body are all rejected.
func DecodeStrict(c echo.Context, v any) error {
	body := c.Request().Body
	if body == nil {
		return apperr.BadRequest("request body is required")
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.PayloadTooLarge(maxErr.Limit)
		}
		return apperr.BadRequest(fmt.Sprintf("invalid request body: %s", cleanJSONError(err)))
	}
	if dec.More() {
		return apperr.BadRequest("invalid request body: unexpected data after JSON object")
	}
	return nil
}

func cleanJSONError(err error) string {
	return strings.TrimPrefix(err.Error(), "json: ")
}

// DateRange bounds a query by creation or recording date. Zero values are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Contains reports whether t falls inside the range. End is inclusive of the
// whole day when it was given as a bare date.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDateRange reads startDate and endDate query parameters. A bare end date
// covers that entire day.
func ParseDateRange(c echo.Context) (DateRange, error) {
	var r DateRange
	var err error
	if s := c.QueryParam("startDate"); s != "" {
		if r.Start, _, err = parseDate(s); err != nil {
			return r, apperr.BadRequest("invalid startDate: " + s)
		}
	}
	if s := c.QueryParam("endDate"); s != "" {
		var dateOnly bool
		if r.End, dateOnly, err = parseDate(s); err != nil {
			return r, apperr.BadRequest("invalid endDate: " + s)
		}
		if dateOnly {
			r.End = r.End.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, apperr.BadRequest("endDate is before startDate")
	}
	return r, nil
}

func parseDate(s string) (time.Time, bool, error) {
	for i, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), i == len(dateLayouts)-1, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
}
