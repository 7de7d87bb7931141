package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/pribylovaa/user-intake/internal/errors"
	"github.com/pribylovaa/user-intake/internal/metrics"
	logctx "github.com/pribylovaa/user-intake/pkg/log"
)

// Recover перехватывает panic и отвечает 500/internal. Детали паники не утекают на клиент,
// а сам запрос учитывается в счётчике исходов как internal.
func Recover(rec metrics.Recorder) Middleware {
	if rec == nil {
		rec = metrics.Noop{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}

					logctx.From(r.Context()).
						LogAttrs(r.Context(), slog.LevelError, "panic",
							slog.String("path", r.URL.Path),
							slog.Any("reason", p),
						)

					err := fmt.Errorf("panic: %v", p)
					rec.IncRequest(apierrors.Code(err))
					apierrors.WriteError(w, r, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
