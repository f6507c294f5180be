package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Response is the JSON envelope returned for failed requests.
type Response struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Violations []string          `json:"violations,omitempty"`
}

// HTTPErrorHandler renders AppErrors and echo HTTP errors in the
// {success:false, message} envelope. Unknown errors become a generic 500 and
// are logged with the request id.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		resp := Response{Message: "internal server error", Code: "INTERNAL_ERROR"}

		var he *echo.HTTPError
		if appErr, ok := As(err); ok {
			status = appErr.HTTPStatus
			resp.Message = appErr.Message
			resp.Code = appErr.Code
			resp.Details = appErr.Details
			resp.Violations = appErr.Violations
		} else if errors.As(err, &he) {
			status = he.Code
			resp.Code = ""
			if msg, ok := he.Message.(string); ok {
				resp.Message = msg
			} else {
				resp.Message = http.StatusText(he.Code)
			}
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}
