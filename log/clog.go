package log

import "context"

// unique type to prevent key collisions in context.Value.
type clogContextKeyType struct{}

var clogContextKey = clogContextKeyType{}

// metadata is the immutable set of key/value pairs WithLogValues has
// accumulated on a context; safe to read without locking since a new map
// is built on every call rather than mutated in place.
type metadata map[string]string

func (m metadata) flat() []interface{} {
	out := make([]interface{}, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}

// WithLogValues returns a context carrying args (as alternating key/value
// pairs) merged on top of whatever logging metadata ctx already carries.
func WithLogValues(ctx context.Context, args ...string) context.Context {
	merged := metadata{}
	if existing, ok := ctx.Value(clogContextKey).(metadata); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for i := 1; i < len(args); i += 2 {
		merged[args[i-1]] = args[i]
	}
	return context.WithValue(ctx, clogContextKey, merged)
}

// LogCtx logs message with whatever key/values WithLogValues attached to
// ctx, routed through Log when the context carries a request_id and
// LogNoRequestID otherwise.
func LogCtx(ctx context.Context, message string, args ...interface{}) {
	meta, _ := ctx.Value(clogContextKey).(metadata)
	allArgs := append(meta.flat(), args...)
	if requestID := meta["request_id"]; requestID != "" {
		Log(requestID, message, allArgs...)
		return
	}
	LogNoRequestID(message, allArgs...)
}
