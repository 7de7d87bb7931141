package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/user-intake/internal/auth"
	"github.com/pribylovaa/user-intake/internal/config"
	intakehttp "github.com/pribylovaa/user-intake/internal/http"
	"github.com/pribylovaa/user-intake/internal/idempotency"
	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/service"
	"github.com/pribylovaa/user-intake/internal/storage"
	"github.com/pribylovaa/user-intake/internal/storage/mongo"
	"github.com/pribylovaa/user-intake/internal/storage/postgres"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting user-intake", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := newStorage(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info(cfg.DB.Driver+"_connected", slog.String("database", cfg.DB.Database), slog.String("collection", cfg.DB.Collection))

	defer func() {
		if cerr := store.Close(context.Background()); cerr != nil {
			log.Warn("storage_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	verifier, err := newVerifier(rootCtx, log, cfg)
	if err != nil {
		log.Error("verifier_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	rec := metrics.NewPrometheus(prometheus.DefaultRegisterer)

	svcOpts := service.Options{
		StoreTimeout: cfg.Timeouts.Store,
		Metrics:      rec,
	}

	if cfg.Idempotency.Enabled {
		redisCtx, redisCancel := context.WithTimeout(rootCtx, 10*time.Second)
		idem, err := idempotency.New(redisCtx, cfg.Idempotency.RedisURL, cfg.Idempotency.Prefix, cfg.Idempotency.TTL, cfg.Timeouts.Service)
		redisCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		log.Info("redis_connected", slog.Duration("ttl", cfg.Idempotency.TTL))

		defer func() { _ = idem.Close() }()

		svcOpts.Idempotency = idem
	}

	users := service.New(store, svcOpts)
	log.Info("service_initialized")

	apiHandler := intakehttp.NewRouter(users, verifier, intakehttp.Options{
		Logger:       log,
		Timeout:      cfg.Timeouts.Service,
		BasePath:     cfg.HTTP.BasePath,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Metrics:      rec,
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		if err := users.Ready(r.Context()); err != nil {
			log.Warn("readiness_check_failed", slog.String("err", err.Error()))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr), slog.String("base_path", cfg.HTTP.BasePath))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("service_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// newStorage подключает хранилище по db.driver.
func newStorage(ctx context.Context, cfg config.DBConfig) (storage.UserStorage, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return mongo.New(ctx, cfg)
	case config.DriverPostgres:
		return postgres.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// newVerifier собирает проверку токенов; JWKS прогревается на старте, но его
// недоступность не фатальна: набор будет перечитан при первом запросе.
func newVerifier(ctx context.Context, log *slog.Logger, cfg *config.Config) (*auth.Verifier, error) {
	opts := auth.Options{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
		Timeout:  cfg.Timeouts.Auth,
	}

	if cfg.Auth.JWKSURL != "" {
		jwks := auth.NewJWKS(cfg.Auth.JWKSURL, cfg.Timeouts.Auth, cfg.Auth.JWKSRefresh)

		warmCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Auth)
		if err := jwks.Refresh(warmCtx); err != nil {
			log.Warn("jwks_warmup_failed", slog.String("err", err.Error()))
		} else {
			log.Info("jwks_loaded", slog.String("url", cfg.Auth.JWKSURL))
		}
		cancel()

		opts.Keys = jwks
	}

	return auth.NewVerifier(opts)
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
