package errors

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total HTTP errors by error type",
	},
	[]string{"type"},
)

// Middleware converts errors returned by handlers into JSON responses
// with the status code of their kind, counting and logging each one.
// Echo's own HTTPErrors (router 404s etc.) pass through untouched.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var echoErr *echo.HTTPError
			if errors.As(err, &echoErr) {
				httpErrorsTotal.WithLabelValues(string(kindForStatus(echoErr.Code))).Inc()
				return err
			}

			typed := From(err)
			httpErrorsTotal.WithLabelValues(string(typed.Kind)).Inc()
			logError(c, typed)
			return c.JSON(typed.HTTPStatus(), typed.response())
		}
	}
}

func kindForStatus(status int) Kind {
	for kind, s := range statusByKind {
		if s == status {
			return kind
		}
	}
	return KindInternal
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Kind,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Fields {
		attrs = append(attrs, k, v)
	}

	switch {
	case err.Kind == KindInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("Request failed", attrs...)
	case err.HTTPStatus() == http.StatusTooManyRequests:
		slog.Warn("Request rejected", attrs...)
	default:
		slog.Info("Request rejected", attrs...)
	}
}
