package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/user-intake/internal/auth"
	apierrors "github.com/pribylovaa/user-intake/internal/errors"
	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/internal/service"
	logctx "github.com/pribylovaa/user-intake/pkg/log"
	"github.com/pribylovaa/user-intake/pkg/redact"
)

// TokenVerifier проверяет bearer-токен у провайдера удостоверений.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.Principal, error)
}

// Authenticate проверяет Authorization до чтения тела запроса:
//  1. заголовок пуст или отсутствует -> 401;
//  2. не "<scheme> <token>" с bearer-схемой или токен не прошёл проверку -> 401;
//  3. провайдер удостоверений недоступен -> dependency_failure (503/504).
//
// Успешно проверенный вызывающий кладётся в контекст (PrincipalFrom).
func Authenticate(v TokenVerifier, rec metrics.Recorder) Middleware {
	if rec == nil {
		rec = metrics.Noop{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lg := logctx.From(r.Context())

			token, err := auth.ParseAuthorization(r.Header.Get("Authorization"))
			if err != nil {
				lg.Warn("auth_rejected",
					slog.String("reason", err.Error()),
					slog.String("authorization", redact.Authorization(r.Header.Get("Authorization"))),
				)
				fail(w, r, rec, fmt.Errorf("%w: %w", service.ErrUnauthenticated, err))
				return
			}

			start := time.Now()
			p, err := v.Verify(r.Context(), token)
			dur := time.Since(start)

			if err != nil {
				if errors.Is(err, auth.ErrAuthorityUnavailable) {
					result := metrics.ResultError
					if errors.Is(err, context.DeadlineExceeded) {
						result = metrics.ResultTimeout
					}
					rec.ObserveDependency(metrics.DependencyAuthority, result, dur)

					lg.Error("auth_authority_unavailable", slog.String("err", err.Error()))
					fail(w, r, rec, fmt.Errorf("%w: %w", service.ErrDependencyFailure, err))
					return
				}

				rec.ObserveDependency(metrics.DependencyAuthority, metrics.ResultReject, dur)
				lg.Warn("auth_rejected",
					slog.String("reason", err.Error()),
					slog.String("authorization", redact.Authorization(r.Header.Get("Authorization"))),
				)
				fail(w, r, rec, fmt.Errorf("%w: %w", service.ErrUnauthenticated, err))
				return
			}

			rec.ObserveDependency(metrics.DependencyAuthority, metrics.ResultOK, dur)

			if info := requestInfoFrom(r.Context()); info != nil {
				info.subject = p.Subject
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logctx.With(ctx, slog.String("subject", p.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func fail(w http.ResponseWriter, r *http.Request, rec metrics.Recorder, err error) {
	rec.IncRequest(apierrors.Code(err))
	apierrors.WriteError(w, r, err)
}
