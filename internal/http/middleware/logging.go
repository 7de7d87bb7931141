package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/user-intake/pkg/log"
)

// Logging кладёт request-scoped логгер в контекст и пишет одну запись "http" на запрос.
// Заголовки и тело не логируются; subject добавляется, если запрос прошёл Authenticate.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			info := &requestInfo{}
			ctx := logctx.Into(r.Context(), reqLogger)
			ctx = context.WithValue(ctx, ctxRequestInfo, info)
			r = r.WithContext(ctx)

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("dur", dur),
				slog.Int("bytes", sw.count),
			}
			if info.subject != "" {
				attrs = append(attrs, slog.String("subject", info.subject))
			}

			logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelInfo, "http", attrs...)
		})
	}
}
