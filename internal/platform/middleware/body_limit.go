package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

// BodyLimit caps request bodies. formLimit applies to the JSON intake forms,
// uploadLimit to multipart recording uploads. Limits use ParseLimit syntax.
//
// A declared Content-Length over the limit is rejected before the handler
// runs. Otherwise the body is wrapped with http.MaxBytesReader and the
// decoder surfaces *http.MaxBytesError, which handlers map to
// apperr.PayloadTooLarge.
func BodyLimit(formLimit, uploadLimit string) echo.MiddlewareFunc {
	formBytes := ParseLimit(formLimit)
	uploadBytes := ParseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := formBytes
			if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
				limit = uploadBytes
			}
			if req.ContentLength > limit {
				return apperr.PayloadTooLarge(limit)
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
			return next(c)
		}
	}
}

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"GB", 30}, {"G", 30},
	{"MB", 20}, {"M", 20},
	{"KB", 10}, {"K", 10},
	{"B", 0},
}

// ParseLimit parses sizes such as "10M", "512K", "1GB" or a bare byte
// count. Empty or malformed input yields 1 MB.
func ParseLimit(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	var shift uint
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, shift = strings.TrimSuffix(s, u.suffix), u.shift
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n << shift
}
