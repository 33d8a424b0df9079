package logx

import (
	"context"

	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sourceKey contextKey = iota
	connKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSource annotates the context logger with the replica source if present.
func WithSource(ctx context.Context, source schema.Source) pslog.Logger {
	log := pslog.Ctx(ctx)
	if source != "" {
		if current, ok := ctx.Value(sourceKey).(schema.Source); ok && current == source {
			return log
		}
		log = log.With("source", source)
	}
	return log
}

// WithTab annotates the logger with a tab directory name when available.
func WithTab(log pslog.Logger, name string) pslog.Logger {
	if name != "" {
		log = log.With("tab", name)
	}
	return log
}

// WithURL annotates the logger with a tab url when available.
func WithURL(log pslog.Logger, url string) pslog.Logger {
	if url != "" {
		log = log.With("url", url)
	}
	return log
}

// WithConn annotates the context logger with a socket connection id.
func WithConn(ctx context.Context, connID string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if connID != "" {
		if current, ok := ctx.Value(connKey).(string); ok && current == connID {
			return log
		}
		log = log.With("conn", connID)
	}
	return log
}

// ContextWithSource stores the source marker on the context for log de-duplication.
func ContextWithSource(ctx context.Context, source schema.Source) context.Context {
	if ctx == nil || source == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceKey, source)
}

// ContextWithSourceLogger annotates the context logger with source and stores
// both on the context.
func ContextWithSourceLogger(ctx context.Context, source schema.Source) context.Context {
	log := WithSource(ctx, source)
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSource(ctx, source)
}

// ContextWithConnLogger attaches the logger and connection marker to the context.
func ContextWithConnLogger(ctx context.Context, log pslog.Logger, connID string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if ctx == nil || connID == "" {
		return ctx
	}
	return context.WithValue(ctx, connKey, connID)
}
