package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/user-intake/internal/http/handlers"
	"github.com/pribylovaa/user-intake/internal/http/middleware"
	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/service"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger       *slog.Logger
	Timeout      time.Duration
	BasePath     string // например, "/api"; если пустой — роуты регистрируются на корне.
	MaxBodyBytes int64
	Metrics      metrics.Recorder
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(users *service.Users, verifier middleware.TokenVerifier, opts Options) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}

	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(opts.Metrics), // безопасно ловим паники
		middleware.RequestID(),           // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),  // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(users, opts.Metrics)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, verifier, opts)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, verifier, opts)
	return root
}

// registerRoutes — единая точка регистрации REST-эндпойнтов.
// Аутентификация идёт раньше ограничения тела: без валидного токена тело не читается.
func registerRoutes(r chi.Router, h *handlers.Handlers, verifier middleware.TokenVerifier, opts Options) {
	r.Group(func(r chi.Router) {
		r.Use(
			middleware.Authenticate(verifier, opts.Metrics),
			middleware.BodyLimit(opts.MaxBodyBytes),
		)

		r.Post("/users", h.RegisterUser)
	})
}
