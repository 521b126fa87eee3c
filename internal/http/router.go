// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, rate limiting and the API
// key guard.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/qriscuy/docs"
	"github.com/tbourn/qriscuy/internal/config"
	"github.com/tbourn/qriscuy/internal/domain"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	"github.com/tbourn/qriscuy/internal/http/handlers"
	"github.com/tbourn/qriscuy/internal/http/middleware"
	"github.com/tbourn/qriscuy/internal/repo"
	"github.com/tbourn/qriscuy/internal/services"
)

// invoiceRepoShim adapts the repository free functions to the
// services.InvoiceRepo interface expected by the InvoiceService.
type invoiceRepoShim struct{}

// CreateInvoice proxies repo.CreateInvoice.
func (invoiceRepoShim) CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return repo.CreateInvoice(ctx, db, inv)
}

// GetInvoice proxies repo.GetInvoice.
func (invoiceRepoShim) GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	return repo.GetInvoice(ctx, db, id)
}

// GetFingerprintByInvoice proxies repo.GetFingerprintByInvoice (idempotent replay).
func (invoiceRepoShim) GetFingerprintByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.Fingerprint, error) {
	return repo.GetFingerprintByInvoice(ctx, db, invoiceID)
}

// CountInvoices proxies repo.CountInvoices (pagination support).
func (invoiceRepoShim) CountInvoices(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	return repo.CountInvoices(ctx, db, merchantID)
}

// ListInvoicesPage proxies repo.ListInvoicesPage (pagination support).
func (invoiceRepoShim) ListInvoicesPage(ctx context.Context, db *gorm.DB, merchantID string, offset, limit int) ([]domain.Invoice, error) {
	return repo.ListInvoicesPage(ctx, db, merchantID, offset, limit)
}

// InvoiceListVersion proxies repo.InvoiceListVersion.
func (invoiceRepoShim) InvoiceListVersion(ctx context.Context, db *gorm.DB, merchantID string) (repo.ListVersion, error) {
	return repo.InvoiceListVersion(ctx, db, merchantID)
}

// ListScanEvents proxies repo.ListScanEvents.
func (invoiceRepoShim) ListScanEvents(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.ScanEvent, error) {
	return repo.ListScanEvents(ctx, db, invoiceID)
}

// CompareAndSetStatusAt proxies repo.CompareAndSetStatusAt.
func (invoiceRepoShim) CompareAndSetStatusAt(ctx context.Context, db *gorm.DB, id string, from, to domain.Status, at time.Time) error {
	return repo.CompareAndSetStatusAt(ctx, db, id, from, to, at)
}

// GetIdempotency proxies repo.GetIdempotency.
func (invoiceRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, merchantID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, merchantID, key, now)
}

// CreateIdempotency proxies repo.CreateIdempotency.
func (invoiceRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, merchantID, key, invoiceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, merchantID, key, invoiceID, status, ttl)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath. locker may be
// nil, in which case scans are serialized by the database alone.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs; X-API-Key masked, IDs and signature
//     hex scrubbed from query strings and header values
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per merchant/IP, bypass on replay)
//  10. CORS and Security headers
//
// The API key guard is mounted on the versioned group only, so /health and
// /metrics stay reachable for probes and scrapers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, signer *fingerprint.Signer, locker services.Locker) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderAPIKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (64 KiB; payloads are well under 1 KiB)
	r.Use(limitBody(64 << 10))

	// 6) Compress JSON responses; generate responses carry a base64 PNG.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  middleware.MerchantFromJSONBody(),
		},
		func(ctx context.Context, merchantID, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, merchantID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))

	// 9) Token-bucket rate limiter per merchant/IP and route
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:      cfg.RateRPS,
		Burst:    cfg.RateBurst,
		Key:      middleware.KeyByMerchantOrIP(),
		PerRoute: true,
	})
	r.Use(rl.Handler())

	// 10) CORS, then security headers
	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	// Security headers; payment payloads must not sit in shared caches.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		CSPExempt:    []string{"/swagger/"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/signer/lock
	invSvc := &services.InvoiceService{
		DB:             db,
		Repo:           invoiceRepoShim{},
		Signer:         signer,
		DefaultPolicy:  cfg.DefaultPolicy,
		TTLSeconds:     cfg.TTLSeconds,
		QRSize:         cfg.QRSize,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	scanSvc := &services.ScanService{
		Store:   repo.NewScanStore(db),
		Signer:  signer,
		Locker:  locker,
		LockTTL: cfg.LockTTL,
	}
	h := handlers.New(invSvc, scanSvc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/v1"
	api.Use(middleware.APIKey(cfg.APIKey))
	{
		api.POST("/qr", h.GenerateQR)
		api.POST("/scan", h.Scan)

		api.GET("/invoices", h.ListInvoices)
		api.GET("/invoices/:id", h.GetInvoice)
		api.POST("/invoices/:id/confirm", h.ConfirmInvoice)

		api.POST("/payloads/inspect", h.InspectPayload)
	}
}

// corsHandlers answers preflights and sets Access-Control-Allow-Origin.
// No origins means any origin; credentials are never allowed. The explicit
// echo also covers simple requests that gin-contrib/cors leaves alone.
func corsHandlers(origins []string) []gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderAPIKey, middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}

	var echo gin.HandlerFunc
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		echo = func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Next()
		}
	} else {
		cc.AllowOrigins = origins
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		echo = func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		}
	}
	return []gin.HandlerFunc{echo, cors.New(cc)}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
