// Package httpapi wires the HTTP transport (Gin) to the complaint service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-triage/internal/classifier"
	"github.com/tbourn/go-complaint-triage/internal/config"
	"github.com/tbourn/go-complaint-triage/internal/http/handlers"
	"github.com/tbourn/go-complaint-triage/internal/http/middleware"
	"github.com/tbourn/go-complaint-triage/internal/notify"
	"github.com/tbourn/go-complaint-triage/internal/repo"
	"github.com/tbourn/go-complaint-triage/internal/services"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		"X-Client-Info", "Apikey", middleware.HeaderIdempotencyKey,
	}
	corsExpose = []string{"X-Request-ID", "Content-Length", "ETag", "Idempotent-Replayed"}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and builds the complaint service from its dependencies. pub receives
// insert events after each stored complaint; events feeds the live streams.
// Either may be nil.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
//  10. gzip, except on stream routes
func RegisterRoutes(r *gin.Engine, db *gorm.DB, clf classifier.Classifier, pub notify.Publisher, events notify.Source, cfg config.Config) *services.ComplaintService {
	r.HandleMethodNotAllowed = true
	// ClientID keys rate limits and idempotency on c.ClientIP, so forwarded
	// headers count only when they come from a configured proxy.
	if err := r.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		log.Error().Err(err).Strs("trusted_proxies", cfg.Security.TrustedProxies).Msg("invalid trusted proxies; trusting none")
		_ = r.SetTrustedProxies(nil)
	}

	base := cfg.APIBasePath
	if base == "/" {
		base = ""
	}
	streamPaths := []string{base + "/complaints/stream", base + "/complaints/events"}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, clientID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, clientID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// CORS posture (allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := originSet(cfg.CORS.AllowedOrigins)
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths(streamPaths)))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: service ← repo/db/classifier/notifier
	svc := services.NewComplaintService(db, services.GormComplaintRepo{}, clf, pub)
	svc.MaxTextRunes = cfg.MaxComplaintRunes
	if cfg.Notify.Timeout > 0 {
		svc.NotifyTimeout = cfg.Notify.Timeout
	}
	if cfg.IdempotencyTTL > 0 {
		svc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	if cfg.ListDefaultLimit > 0 {
		svc.DefaultLimit = cfg.ListDefaultLimit
	}
	if cfg.ListMaxLimit > 0 {
		svc.MaxLimit = cfg.ListMaxLimit
	}

	h := handlers.New(svc, events)
	if cfg.Notify.Buffer > 0 {
		h.StreamBuffer = cfg.Notify.Buffer
	}
	if cfg.Notify.KeepAlive > 0 {
		h.KeepAlive = cfg.Notify.KeepAlive
	}
	h.CheckOrigin = originChecker(cfg.CORS.AllowedOrigins)

	r.GET("/health", h.Health)

	// Legacy path used by existing dashboard clients.
	r.POST("/analyze-complaint", h.SubmitComplaint)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/complaints", h.SubmitComplaint)
		api.GET("/complaints", h.ListComplaints)
		api.GET("/complaints/stream", h.StreamComplaints)
		api.GET("/complaints/events", h.ComplaintEvents)
		api.GET("/complaints/:id", h.GetComplaint)
	}
	return svc
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

func originSet(origins []string) map[string]struct{} {
	m := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		m[o] = struct{}{}
	}
	return m
}

// originChecker vets websocket upgrades against the CORS allowlist. An empty
// allowlist accepts every origin, matching the allow-all CORS branch.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := originSet(origins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		_, ok := allowed[origin]
		return ok
	}
}
