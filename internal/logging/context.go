package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	appIDKey ctxKey = iota
	actionKey
	agentIDKey
	invocationIDKey
)

// WithAppID returns a context with the app ID set.
func WithAppID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, appIDKey, id)
}

// WithAction returns a context with the action name set.
func WithAction(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actionKey, name)
}

// WithAgentID returns a context with the agent ID set.
func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, agentIDKey, id)
}

// WithInvocationID returns a context with the invocation ID set.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// AppID extracts the app ID from the context, or "" if absent.
func AppID(ctx context.Context) string {
	v, _ := ctx.Value(appIDKey).(string)
	return v
}

// Action extracts the action name from the context, or "" if absent.
func Action(ctx context.Context) string {
	v, _ := ctx.Value(actionKey).(string)
	return v
}

// AgentID extracts the agent ID from the context, or "" if absent.
func AgentID(ctx context.Context) string {
	v, _ := ctx.Value(agentIDKey).(string)
	return v
}

// InvocationID extracts the invocation ID from the context, or "" if absent.
func InvocationID(ctx context.Context) string {
	v, _ := ctx.Value(invocationIDKey).(string)
	return v
}

// WithIDs sets all invocation correlation IDs on the context at once.
func WithIDs(ctx context.Context, appID, action, agentID, invocationID string) context.Context {
	ctx = WithAppID(ctx, appID)
	ctx = WithAction(ctx, action)
	ctx = WithAgentID(ctx, agentID)
	ctx = WithInvocationID(ctx, invocationID)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if v := AppID(ctx); v != "" {
		logger = logger.With(slog.String("app_id", v))
	}
	if v := Action(ctx); v != "" {
		logger = logger.With(slog.String("action", v))
	}
	if v := AgentID(ctx); v != "" {
		logger = logger.With(slog.String("agent_id", v))
	}
	if v := InvocationID(ctx); v != "" {
		logger = logger.With(slog.String("invocation_id", v))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := AppID(ctx); v != "" {
		r.AddAttrs(slog.String("app_id", v))
	}
	if v := Action(ctx); v != "" {
		r.AddAttrs(slog.String("action", v))
	}
	if v := AgentID(ctx); v != "" {
		r.AddAttrs(slog.String("agent_id", v))
	}
	if v := InvocationID(ctx); v != "" {
		r.AddAttrs(slog.String("invocation_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
