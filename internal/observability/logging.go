// Package observability provides structured logging construction and the
// OTel tracer entry point shared by the CLI and the background worker.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// serviceName is the OTel tracer name for this service.
const serviceName = "lightrag"

// NewLogger builds an slog logger writing to w. Level is one of debug,
// info, warn, error; format is text or json. A nil w defaults to stderr.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level

	err := lvl.UnmarshalText([]byte(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler

	switch format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return slog.New(handler), nil
}

// Tracer returns the service tracer from the globally registered
// provider. Without a configured provider, spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}
