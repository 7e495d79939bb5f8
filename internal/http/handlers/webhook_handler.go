package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot/models"

	"github.com/tbourn/forum-relay-bot/internal/http/middleware"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher schedules one update for handling. *bot.Dispatcher
// implements it.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, u *models.Update)
}

// Pinger reports whether the store is reachable. *repo.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the webhook and health endpoints.
type Handler struct {
	Dispatcher UpdateDispatcher
	Secret     string
	DB         Pinger
}

// New builds a Handler. dispatcher may be nil when the webhook route is not
// registered (polling mode).
func New(dispatcher UpdateDispatcher, secret string, db Pinger) *Handler {
	return &Handler{Dispatcher: dispatcher, Secret: secret, DB: db}
}

// Webhook accepts one Telegram update.
//
// The update is scheduled and acknowledged with 200 right away; handling
// continues after the response. Telegram redelivers anything not answered
// with 2xx, so only requests that can never succeed get an error status.
func (h *Handler) Webhook(c *gin.Context) {
	if h.Secret != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
			return
		}
	}

	var u models.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update body")
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Debug().Int64("update_id", u.ID).Msg("webhook update received")

	h.Dispatcher.Dispatch(c.Request.Context(), &u)
	ok(c, http.StatusOK, gin.H{"ok": true})
}

// Health pings the store with a short deadline.
func (h *Handler) Health(c *gin.Context) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Msg("health: store unreachable")
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "store unavailable")
			return
		}
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}
