package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/backend"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/metrics"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/rate"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/token"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/util"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/web"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web front end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Logging.Level == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfgPath, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	metrics.MustRegister()

	log.Info().
		Str("config_path", cfgPath).
		Str("log_level", cfg.Logging.Level).
		Str("listen", cfg.Server.Listen).
		Bool("tls_enabled", cfg.Server.TLSEnabled).
		Bool("dev_mode", cfg.Security.DevMode).
		Msg("server configuration")
	log.Info().
		Str("base_url", cfg.Backend.BaseURL).
		Int("timeout_ms", cfg.Backend.TimeoutMs).
		Int("breaker_failures", cfg.Backend.Breaker.FailureThreshold).
		Msg("backend configuration")
	log.Info().
		Str("session_store", cfg.Session.Store).
		Str("rate_backend", cfg.RateLimit.Backend).
		Int("rate_max", cfg.RateLimit.Max).
		Int("rate_window_sec", cfg.RateLimit.WindowSec).
		Msg("state configuration")

	kr, err := token.NewKeyring("HS256", cfg.Session.Keys, cfg.Session.CurrentKID, cfg.Session.Issuer, 0)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Session.Store == "redis" || cfg.RateLimit.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr, DB: cfg.Session.RedisDB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(parent, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Session loads fail with 503 and the limiter fails open until Redis returns.
			log.Warn().Err(err).Str("addr", cfg.Session.RedisAddr).Msg("redis not reachable at startup")
		}
	}

	var store session.Store
	if cfg.Session.Store == "redis" {
		store = session.NewRedisStore(rdb, cfg.Session.KeyPrefix)
	} else {
		store = session.NewMemoryStore(cfg.Session.Capacity, cfg.SessionIdleTTL())
	}

	var limiter rate.Limiter
	var window *rate.Window
	if cfg.RateLimit.Backend == "redis" {
		limiter = rate.NewRedisWindow(rdb, "", cfg.RateLimit.Max, cfg.RateWindow())
	} else {
		window = rate.NewWindowWithCapacity(cfg.RateLimit.Max, cfg.RateWindow(), cfg.RateLimit.Capacity)
		limiter = window
	}

	var anonKey []byte
	if cfg.Logging.AnonymizeIP {
		anonKey, err = util.DeriveKey(kr.CurrentKey(), "access-log-ip", 32)
		if err != nil {
			return err
		}
	}

	srvHandler, err := web.New(web.Deps{
		Config:   cfg,
		Logger:   log.Logger,
		Backend:  backend.New(cfg.Backend),
		Sessions: session.NewManager(store, kr, cfg.Session.Cookie, cfg.SessionIdleTTL()),
		Limiter:  limiter,
		AnonKey:  anonKey,
		Metrics:  promhttp.Handler(),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srvHandler.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("listen", cfg.Server.Listen).Msg("frontend listening")
		var err error
		if cfg.Server.TLSEnabled {
			log.Info().
				Str("cert", cfg.Server.TLSCertFile).
				Str("key", cfg.Server.TLSKeyFile).
				Msg("starting with TLS")
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			log.Warn().Msg("starting without TLS (WARNING: use TLS in production)")
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if window != nil {
		g.Go(func() error {
			sweepLoop(gctx, window)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed, forcing close")
			srv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// sweepLoop reclaims idle rate limiter keys and reports how many remain.
func sweepLoop(ctx context.Context, w *rate.Window) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := w.Sweep()
			metrics.RateLimiterKeys.Set(float64(n))
			log.Debug().Int("keys", n).Msg("rate limiter sweep")
		}
	}
}
