// Package http provides the HTTP server for the trip agent.
package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/metrics"
	"github.com/xiaot623/gogo/tripagent/internal/service"
	v1 "github.com/xiaot623/gogo/tripagent/internal/transport/http/v1"
	"github.com/xiaot623/gogo/tripagent/internal/transport/ws"
)

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	turnTimeout time.Duration
}

// WithTurnTimeout bounds each turn submitted over HTTP.
func WithTurnTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.turnTimeout = d
	}
}

// NewServer creates the public HTTP server. wsServer and collector may be nil.
func NewServer(svc *service.Service, wsServer *ws.Server, collector *metrics.Collector, logger *zap.Logger, opts ...ServerOption) *echo.Echo {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(RequestLogger(logger, collector))

	// Handlers
	v1.NewHandler(svc, o.turnTimeout).RegisterRoutes(e)
	if collector != nil {
		e.GET("/metrics", echo.WrapHandler(collector.Handler()))
	}
	if wsServer != nil {
		e.GET("/ws", wsServer.HandleWebSocket)
	}

	return e
}

// RequestLogger logs every request through zap and counts it.
func RequestLogger(logger *zap.Logger, collector *metrics.Collector) echo.MiddlewareFunc {
	logger = logger.Named("http")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			collector.ObserveHTTP(v.Method, v.RoutePath, v.Status)
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("request", fields...)
			return nil
		},
	})
}

// Validator adapts go-playground/validator to echo.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate checks struct tags and reports every failed field.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
