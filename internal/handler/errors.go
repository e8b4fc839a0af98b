package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/apperr"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Detail     string         `json:"detail"`
	ErrorType  string         `json:"error_type"`
	StatusCode int            `json:"status_code"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// ErrorHandler renders domain errors as errorBody.  Echo's own errors (404
// route, 405, bind failures) keep their status; anything else is logged and
// reported as an internal error without detail.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		e := apperr.As(err)
		if e == nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				e = &apperr.Error{Status: he.Code, Type: statusType(he.Code), Detail: fmt.Sprint(he.Message)}
			} else {
				log.Error("unhandled error",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.Error(err))
				e = apperr.ErrInternal
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(e.Status)
		} else {
			werr = c.JSON(e.Status, errorBody{
				Detail:     e.Detail,
				ErrorType:  e.Type,
				StatusCode: e.Status,
				Extra:      e.Extra,
			})
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}

// statusType turns 405 into "method_not_allowed".
func statusType(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "http_error"
	}
	return strings.ToLower(strings.ReplaceAll(text, " ", "_"))
}

// invalidBody is returned when a request body cannot be decoded.
var invalidBody = apperr.ErrValidation.With("invalid request body", nil)
