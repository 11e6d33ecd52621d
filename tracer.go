package conclave

import "context"

// Tracer creates spans. The Council opens one per debate or ranking run;
// rounds and gateway calls are not wrapped through it. The observer package
// provides an OTel-backed implementation; when no Tracer is configured, span
// creation is skipped.
type Tracer interface {
	// Start creates a span with the given name and attributes, returning a
	// child context carrying it. Callers must call Span.End exactly once.
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is one traced operation.
type Span interface {
	// SetAttr adds attributes after creation.
	SetAttr(attrs ...SpanAttr)
	// Error records an error and marks the span failed.
	Error(err error)
	// End completes the span.
	End()
}

// SpanAttr is a key-value attribute attached to a span.
type SpanAttr struct {
	Key   string
	Value any
}

// StringAttr creates a string-typed span attribute.
func StringAttr(k, v string) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}

// IntAttr creates an int-typed span attribute.
func IntAttr(k string, v int) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}

// BoolAttr creates a bool-typed span attribute.
func BoolAttr(k string, v bool) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}
