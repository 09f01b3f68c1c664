// Package httpapi wires the HTTP transport (Gin) of a pipeline stage to its
// handlers and middleware. Every stage exposes the same operational surface
// (/health, /ready, /metrics, /swagger) plus the API routes of the service it
// owns.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/clinical-intake/docs"
	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/http/handlers"
	"github.com/tbourn/clinical-intake/internal/http/middleware"
)

// Options carries the stage-specific parts of the router.
type Options struct {
	Stage string
	Log   zerolog.Logger
	// Ready reports whether the stage's dependencies are usable; nil means
	// always ready.
	Ready func(context.Context) error
}

// RegisterRoutes attaches all middleware and endpoints to r. Only the route
// groups whose service is set on h are mounted.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID and Identity: correlation id and caller
//  3. Logger: request-scoped logger, redacted access log
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (responses only; /metrics excluded)
//  8. Rate limiter (per caller or IP)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.Config, opts Options) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName + "-" + opts.Stage))
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.Logger(opts.Log))
	r.Use(middleware.Recovery(opts.Log))
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{HSTSMaxAge: cfg.HSTSMaxAge}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stage": opts.Stage})
	})
	r.GET("/ready", func(c *gin.Context) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "stage": opts.Stage})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "stage": opts.Stage})
	})

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := groupWithPrefix(r, cfg.APIBasePath)
	if h.Sessions != nil {
		api.POST("/sessions", h.StartSession)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.POST("/sessions/:id/messages", h.PostMessage)
		api.POST("/sessions/:id/complete", h.CompleteSession)
		api.POST("/sessions/:id/cancel", h.CancelSession)
		api.GET("/sessions/:id/summary", h.GetSummary)
	}
	if h.Classifications != nil {
		api.GET("/classifications", h.ListClassifications)
		api.GET("/classifications/:id", h.GetClassification)
		api.GET("/classifications/session/:sessionId", h.GetClassificationBySession)
	}
	if h.Cases != nil {
		api.GET("/cases", h.ListCases)
		api.GET("/cases/:id", h.GetCase)
		api.PATCH("/cases/:id/assign", h.AssignCase)
		api.PATCH("/cases/:id/status", h.UpdateCaseStatus)
		api.POST("/cases/:id/notes", h.AddCaseNote)
	}
}

// corsConfig allows every origin when none is configured (credentials stay
// disabled in that case) and otherwise only the listed ones.
func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.UserIDHeader, "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Location"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

// limitBody caps the request body at maxBytes; reads past the cap fail.
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
