package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/kamipay/pixrouter/internal/types"
)

// traceMatcher wraps any matcher and logs each evaluation at debug level with
// the node's logical path, result and elapsed time. Context keys may be
// captured for diagnosis; values never are, they can carry payment data.
type traceMatcher struct {
	inner          Matcher
	path           string
	logger         *slog.Logger
	captureCtxKeys bool
}

func newTrace(inner Matcher, path string, logger *slog.Logger, captureCtxKeys bool) Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &traceMatcher{inner: inner, path: path, logger: logger, captureCtxKeys: captureCtxKeys}
}

func (m *traceMatcher) Match(ctx types.Context) bool {
	start := time.Now()
	res := m.inner.Match(ctx)
	elapsed := time.Since(start)

	attrs := []slog.Attr{
		slog.String("path", m.path),
		slog.String("matcher", m.inner.Name()),
		slog.Bool("result", res),
		slog.Float64("time_ms", float64(elapsed.Microseconds())/1000.0),
	}
	if m.captureCtxKeys {
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		attrs = append(attrs, slog.Any("ctx_keys", keys))
	}
	m.logger.LogAttrs(context.Background(), slog.LevelDebug, "predicate node evaluated", attrs...)
	return res
}

func (m *traceMatcher) Name() string {
	return "DBG(" + m.inner.Name() + ")"
}
