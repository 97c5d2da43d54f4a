package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/middleware"
	"github.com/hms/console/internal/session"
)

// Message keys produced by the gateway itself.
const (
	KeyOK                 = "ok"
	KeyAuthRequired       = "auth.required"
	KeyInvalidRequest     = "request.invalid"
	KeyInvalidJSON        = "request.invalid_json"
	KeyNotFound           = "request.not_found"
	KeyMethodNotAllowed   = "request.method_not_allowed"
	KeyBackendUnavailable = "backend.unavailable"
	KeyBackendError       = "backend.error"
)

// envelope is the body of every gateway JSON response, in the backend's shape.
type envelope struct {
	StatusCode int    `json:"StatusCode"`
	MessageKey string `json:"MessageKey"`
	Data       any    `json:"Data,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{StatusCode: status, MessageKey: KeyOK, Data: data})
}

// httpErrorHandler renders every error as an envelope. An *echo.HTTPError
// whose message is a string is taken as a message key.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		key := middleware.KeyInternalError
		code := 0
		var data any

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status = he.Code
			switch msg := he.Message.(type) {
			case string:
				key = msg
			case envelope:
				key, data, code = msg.MessageKey, msg.Data, msg.StatusCode
			default:
				key = http.StatusText(he.Code)
			}
			if he.Code == http.StatusNotFound && key == http.StatusText(http.StatusNotFound) {
				key = KeyNotFound
			}
			if he.Code == http.StatusMethodNotAllowed && key == http.StatusText(http.StatusMethodNotAllowed) {
				key = KeyMethodNotAllowed
			}
		default:
			logger.Error().Err(err).
				Str("request_id", fmt.Sprint(c.Get(middleware.KeyRequestID))).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		if code == 0 {
			code = status
		}
		body := envelope{StatusCode: code, MessageKey: key, Data: data}
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// backendError maps a dispatcher or service error to an HTTP error.
func backendError(err error) *echo.HTTPError {
	var be *apiclient.BusinessError
	var he *apiclient.HTTPError
	switch {
	case domain.IsInvalid(err):
		return echo.NewHTTPError(http.StatusBadRequest, envelope{MessageKey: KeyInvalidRequest, Data: err.Error()})
	case errors.Is(err, apiclient.ErrRefreshFailed):
		return echo.NewHTTPError(http.StatusUnauthorized, session.KeySessionExpired)
	case errors.As(err, &be):
		status := be.HTTPStatus
		if status < http.StatusBadRequest {
			status = businessStatus(be.StatusCode)
		}
		return echo.NewHTTPError(status, envelope{StatusCode: be.StatusCode, MessageKey: be.MessageKey})
	case errors.As(err, &he):
		if he.Status == http.StatusUnauthorized {
			return echo.NewHTTPError(http.StatusUnauthorized, session.KeySessionExpired)
		}
		return echo.NewHTTPError(he.Status, KeyBackendError)
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, middleware.KeyTimeout)
	default:
		return echo.NewHTTPError(http.StatusBadGateway, KeyBackendUnavailable).SetInternal(err)
	}
}

// businessStatus picks the HTTP status for a business error delivered on a 2xx
// transport: the envelope's own status when it is an error code, else 422.
func businessStatus(code int) int {
	if code >= http.StatusBadRequest && code < 600 {
		return code
	}
	return http.StatusUnprocessableEntity
}
