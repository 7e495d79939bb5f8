// Package httpapi wires the bot's HTTP surface (Gin) to the update
// dispatcher: tracing, correlation IDs, logging, panic recovery, metrics,
// the health probe and, in webhook mode, the Telegram update intake.
package httpapi

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/forum-relay-bot/internal/config"
	"github.com/tbourn/forum-relay-bot/internal/http/handlers"
	"github.com/tbourn/forum-relay-bot/internal/http/middleware"
)

// DefaultWebhookPath is used when WEBHOOK_URL carries no path.
const DefaultWebhookPath = "/telegram/webhook"

// maxBodyBytes caps request bodies. Telegram updates are far smaller.
const maxBodyBytes = 1 << 20

// Deps are the collaborators the routes need.
type Deps struct {
	// Dispatcher receives webhook updates. Unused in polling mode.
	Dispatcher handlers.UpdateDispatcher
	// DB backs the health probe.
	DB handlers.Pinger
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//
// The per-IP rate limiter guards only the webhook route, so health checks and
// scrapes are never throttled.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Dispatcher, cfg.Telegram.WebhookSec, deps.DB)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", h.Health)

	if cfg.Telegram.Mode == config.ModeWebhook && deps.Dispatcher != nil {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
		r.POST(WebhookPath(cfg.Telegram.WebhookURL), rl.Handler(), h.Webhook)
	}
}

// WebhookPath returns the path component of the public webhook URL, the
// route Telegram will POST to. A proxy in front of the bot must preserve it.
func WebhookPath(webhookURL string) string {
	u, err := url.Parse(webhookURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultWebhookPath
	}
	return u.Path
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
