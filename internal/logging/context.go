package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

type requestLoggerContextKey struct{}

var fallbackLogger = sync.OnceValue(func() *slog.Logger {
	return NewRootLogger(os.Stdout, slog.LevelInfo).With(slog.String("logger", "fallback"))
})

// NewRootLogger returns a JSON logger whose records are annotated with the active trace
func NewRootLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewTracingLogHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), ""))
}

func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(requestLoggerContextKey{}).(*slog.Logger)
	if !ok || logger == nil {
		return fallbackLogger()
	}
	return logger
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerContextKey{}, logger)
}

func AddMetaToContext(ctx context.Context, args ...slog.Attr) context.Context {
	logger := FromContext(ctx)

	// Convert our []slog.Attr to []any
	anySlice := make([]any, len(args))
	for i, arg := range args {
		anySlice[i] = arg
	}

	withMeta := logger.With(anySlice...)

	return AddToContext(ctx, withMeta)
}
