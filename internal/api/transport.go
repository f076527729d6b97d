package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// loggingTransport logs every request/response pair with method, path,
// status, and duration, flagging slow responses distinctly. Logging is
// best-effort and never alters the response path.
type loggingTransport struct {
	base          http.RoundTripper
	logger        *zap.Logger
	slowThreshold time.Duration
}

// RoundTrip implements http.RoundTripper.
func (transport *loggingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	started := time.Now()
	response, roundTripErr := transport.base.RoundTrip(request)
	elapsed := time.Since(started)

	fields := []zap.Field{
		zap.String("method", request.Method),
		zap.String("path", request.URL.Path),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case roundTripErr != nil:
		transport.logger.Warn("api request failed", append(fields, zap.Error(roundTripErr))...)
	case elapsed > transport.slowThreshold:
		transport.logger.Warn("api slow response", append(fields,
			zap.Int("status", response.StatusCode),
			zap.Bool("slow", true),
		)...)
	default:
		transport.logger.Debug("api request", append(fields, zap.Int("status", response.StatusCode))...)
	}

	return response, roundTripErr
}
