package infra

import "context"

// Тип для ключа в контексте (избегаем коллизий)
type traceCtxKey struct{}

// TraceHeader — заголовок, в котором Trace-ID ходит между шлюзом, консолью и runner-ом.
const TraceHeader = "X-Trace-ID"

const fallbackTraceID = "00000000-0000-0000-0000-000000000000"

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, traceID)
}

// TraceIDFromContext безопасно достает ID в любом месте кода.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceCtxKey{}).(string); ok && id != "" {
		return id
	}
	return fallbackTraceID
}
