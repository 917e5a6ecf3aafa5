// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	jobIDKey
	commandKey
)

// contextFields maps context keys to the log field they populate, in output order.
var contextFields = []struct {
	key   ctxKey
	field string
}{
	{sessionIDKey, FieldSessionID},
	{jobIDKey, FieldJobID},
	{commandKey, FieldCommand},
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

// ContextWithJob stores the queue job id and its command kind.
func ContextWithJob(ctx context.Context, jobID, command string) context.Context {
	return withValue(withValue(ctx, jobIDKey, jobID), commandKey, command)
}

// ContextWithSessionID stores the session a request or job is addressed to.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

func JobIDFromContext(ctx context.Context) string { return valueFrom(ctx, jobIDKey) }

func SessionIDFromContext(ctx context.Context) string { return valueFrom(ctx, sessionIDKey) }

func valueFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithContext adds the session, job and trace identifiers found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	for _, f := range contextFields {
		if v := valueFrom(ctx, f.key); v != "" {
			builder = builder.Str(f.field, v)
			added = true
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		builder = builder.Str(FieldTraceID, sc.TraceID().String())
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext is WithContext applied to a component logger.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
