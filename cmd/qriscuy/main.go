// Command qriscuy serves the QRIS fingerprinting API.
//
//	@title						qriscuy API
//	@version					1.0
//	@description				Anti-replay fingerprinting for QRIS merchant-presented QR payloads.
//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/qriscuy/internal/config"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	httpapi "github.com/tbourn/qriscuy/internal/http"
	"github.com/tbourn/qriscuy/internal/lock"
	"github.com/tbourn/qriscuy/internal/observability"
	"github.com/tbourn/qriscuy/internal/repo"
	"github.com/tbourn/qriscuy/internal/services"
	"github.com/tbourn/qriscuy/internal/sysutil"
)

// Version is stamped at build time via -ldflags "-X main.Version=...".
var Version = "dev"

const (
	shutdownGrace = 15 * time.Second
	purgeInterval = 10 * time.Minute
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	sysutil.WarnInsecureDefaults(log.Logger, cfg.Environment, cfg.InsecureDefaults())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{
		Version:     Version,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}

	signer, err := fingerprint.NewSigner(cfg.HMACSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("signer init failed")
	}
	reportTag62Capacity(log.Logger, signer)

	// A nil interface keeps the scan path on database serialization only.
	var locker services.Locker
	if cfg.RedisURL != "" {
		l, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; scans serialized by the database only")
		} else {
			locker = l
			defer func() { _ = l.Close() }()
		}
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, signer, locker)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db, purgeInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Environment).
			Str("policy", cfg.DefaultPolicy.String()).
			Int("ttl_seconds", cfg.TTLSeconds).
			Bool("redis_lock", locker != nil).
			Msg("qriscuy listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("bye")
}

// reportTag62Capacity signs a throwaway fingerprint for the shortest legal
// merchant id and logs an error when even that overflows tag 62, since
// POST /qr then fails with 500 for every request. It reports whether the
// fingerprint fits.
func reportTag62Capacity(logger zerolog.Logger, signer services.FingerprintSigner) bool {
	err := services.CheckFingerprintCapacity(signer, 0)
	if err == nil {
		return true
	}
	logger.Error().Err(err).Msg("signed fingerprint exceeds the tag 62 length limit; QR generation is unavailable")
	return false
}

// openDB connects, attaches query tracing and migrates the schema.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// purgeIdempotency deletes expired Idempotency-Key records until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("expired idempotency keys purged")
			}
		}
	}
}
