// Package logging provides small structured-logging helpers shared across
// the module, built on top of log/slog rather than a bespoke logger.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// WithLogger attaches a logger to ctx so downstream calls can recover it via
// FromContext without threading a *slog.Logger through every signature.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or slog.Default() if none
// was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// LogOperation emits an informational line naming a discrete operation that
// completed. The op string is a short snake_case event name, matched by
// convention rather than enforced.
func LogOperation(logger *slog.Logger, op string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(op, args...)
}

// LogError emits a warning-level line for a non-fatal error, with err
// attached under the "error" key. It always logs at warning level. Call sites in this module treat every logged error as recoverable; fatal
// conditions panic instead of calling LogError.
func LogError(logger *slog.Logger, msg string, err error, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args = append(args, slog.Any("error", err))
	logger.Warn(msg, args...)
}

// SafeCloseWithLogging closes c and logs any error instead of propagating it.
// Intended for deferred cleanup where the caller has no meaningful recovery
// path for a close failure (response bodies, rows, etc).
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close "+resource, err)
	}
}
