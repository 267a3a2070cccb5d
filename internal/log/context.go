// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	commandKey
)

// correlation lists the context values WithContext copies into log fields.
var correlation = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{commandKey, FieldCommand},
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the HTTP request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	return value(ctx, requestIDKey)
}

// ContextWithCommand stores the name of the running CLI subcommand.
func ContextWithCommand(ctx context.Context, name string) context.Context {
	return withValue(ctx, commandKey, name)
}

// CommandFromContext returns the CLI subcommand name or "".
func CommandFromContext(ctx context.Context) string {
	return value(ctx, commandKey)
}

// WithContext adds the correlation values found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	for _, c := range correlation {
		if v := value(ctx, c.key); v != "" {
			builder = builder.Str(c.field, v)
			added = true
		}
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext is WithComponent plus the correlation fields of ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns the logger attached with zerolog's WithContext, or
// the base logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := Base()
		return &b
	}
	return l
}
