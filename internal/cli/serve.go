package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-qa-backend/internal/config"
	httpapi "github.com/tbourn/go-qa-backend/internal/http"
	"github.com/tbourn/go-qa-backend/internal/http/middleware"
	"github.com/tbourn/go-qa-backend/internal/observability"
	"github.com/tbourn/go-qa-backend/internal/repo"
	"github.com/tbourn/go-qa-backend/internal/sysutil"
)

// idempotencySweepInterval is how often expired Idempotency-Key records are
// purged.
const idempotencySweepInterval = time.Minute

func newServeCmd(s *settings, version string) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Run the HTTP API. Settings come from --config, then a .env file in the working directory, then the environment.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()

			cfg, err := config.LoadFile(s.cfgFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			sysutil.ConfigureLogger(os.Stdout, sysutil.LogOptions{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Version: version})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := newServer(ctx, cfg, version)
			if err != nil {
				return err
			}
			return srv.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

// server owns the HTTP listener and everything it depends on.
type server struct {
	cfg       config.Config
	http      *http.Server
	store     *repo.Store
	db        *gorm.DB
	rdb       *redis.Client
	otelClose func(context.Context) error
}

// newServer builds the store, the idempotency database, optional Redis rate
// statistics, tracing, and the router. Any failure here is fatal to serve.
func newServer(ctx context.Context, cfg config.Config, version string) (*server, error) {
	s := &server{cfg: cfg}

	otelClose, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	s.otelClose = otelClose

	store, err := repo.NewStoreFromSeed(cfg.Seed())
	if err != nil {
		_ = s.close(ctx)
		return nil, fmt.Errorf("seed %q: %w", cfg.Seed(), err)
	}
	s.store = store

	db, err := repo.OpenSQLite(cfg.IdempotencyDB)
	if err != nil {
		_ = s.close(ctx)
		return nil, fmt.Errorf("idempotency db: %w", err)
	}
	s.db = db
	if err := repo.AutoMigrate(db); err != nil {
		_ = s.close(ctx)
		return nil, fmt.Errorf("idempotency migrate: %w", err)
	}

	deps := httpapi.Deps{Store: store, DB: db}
	if cfg.RateStats.Enabled() {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RateStats.RedisAddr,
			Password: cfg.RateStats.RedisPassword,
			DB:       cfg.RateStats.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RateStats.RedisAddr).Msg("rate stats: redis unreachable, recording anyway")
		}
		cancel()
		deps.RateStats = middleware.NewRedisStats(s.rdb,
			middleware.WithStatsPrefix(cfg.RateStats.Prefix),
			middleware.WithStatsTTL(cfg.RateStats.TTL),
		)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return s, nil
}

// run serves until ctx is cancelled, then drains in-flight requests for at
// most cfg.ShutdownTimeout and releases resources.
func (s *server) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		_ = s.close(context.Background())
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *server) serve(ctx context.Context, ln net.Listener) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepIdempotency(sweepCtx, s.db, idempotencySweepInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", ln.Addr().String()).
			Str("base_path", s.cfg.APIBasePath).
			Int("questions", s.store.QuestionCount()).
			Msg("listening")
		errCh <- s.http.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := s.close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("release resources")
	}
	return serveErr
}

// close releases the database, Redis, and the tracer provider.
func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.otelClose != nil {
		errs = append(errs, s.otelClose(ctx))
	}
	return errors.Join(errs...)
}

// sweepIdempotency deletes expired idempotency records every interval until
// ctx is done.
func sweepIdempotency(ctx context.Context, db *gorm.DB, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.DeleteExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency sweep")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency sweep")
			}
		}
	}
}
