// Package bot feeds Telegram updates into the relay: a bounded concurrent
// dispatcher shared by both intake modes, the long-poll loop, and the
// housekeeping job for update receipts.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/forum-relay-bot/internal/domain"
	"github.com/tbourn/forum-relay-bot/internal/repo"
	"github.com/tbourn/forum-relay-bot/internal/telegram"
)

var (
	// updatesTotal counts received updates by what the dispatcher did with them.
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of Telegram updates received, by result.",
		},
		[]string{"result"}, // dispatched|duplicate|skipped|failed
	)

	// handlersInflight gauges events currently being handled.
	handlersInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_handlers_inflight",
			Help: "Current number of events being handled.",
		},
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, handlersInflight)
}

// Handler processes one relay event. *services.Relay implements it.
type Handler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// ReceiptStore records seen update ids. CreateUpdateReceipt must return
// repo.ErrDuplicate for an id that was already recorded.
type ReceiptStore interface {
	CreateUpdateReceipt(ctx context.Context, updateID int64, ttl time.Duration) error
}

// Dispatcher runs every event on its own goroutine, with at most
// maxConcurrency running at once. Dispatch blocks while the pool is full.
type Dispatcher struct {
	handler  Handler
	receipts ReceiptStore
	ttl      time.Duration
	group    errgroup.Group
	log      zerolog.Logger
}

// NewDispatcher builds a dispatcher. receipts may be nil to disable
// duplicate suppression.
func NewDispatcher(h Handler, receipts ReceiptStore, ttl time.Duration, maxConcurrency int, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{handler: h, receipts: receipts, ttl: ttl, log: log}
	if maxConcurrency > 0 {
		d.group.SetLimit(maxConcurrency)
	}
	return d
}

// Dispatch schedules u for handling and returns once it is scheduled.
// Handling outlives ctx's cancellation (e.g. a finished webhook request)
// but keeps its values.
//
// The receipt is claimed before the handler runs, so two deliveries of one
// update never both relay. The price is at-most-once delivery: a failed
// handler is logged and counted, and a redelivery of that update is dropped
// as a duplicate.
func (d *Dispatcher) Dispatch(ctx context.Context, u *models.Update) {
	ev, ok := telegram.ToEvent(u)
	if !ok {
		updatesTotal.WithLabelValues("skipped").Inc()
		return
	}

	if d.receipts != nil {
		err := d.receipts.CreateUpdateReceipt(ctx, u.ID, d.ttl)
		if errors.Is(err, repo.ErrDuplicate) {
			updatesTotal.WithLabelValues("duplicate").Inc()
			d.log.Debug().Int64("update_id", u.ID).Msg("duplicate update dropped")
			return
		}
		if err != nil {
			// Handle anyway: a missing receipt only weakens duplicate suppression.
			d.log.Warn().Err(err).Int64("update_id", u.ID).Msg("update receipt not recorded")
		}
	}

	updatesTotal.WithLabelValues("dispatched").Inc()
	hctx := context.WithoutCancel(ctx)
	l := d.log.With().
		Str("dispatch_id", uuid.NewString()).
		Int64("update_id", ev.UpdateID).
		Int64("chat_id", ev.ChatID).
		Int64("message_id", ev.MessageID).
		Str("kind", ev.Kind.String()).
		Logger()

	d.group.Go(func() error {
		handlersInflight.Inc()
		defer handlersInflight.Dec()

		start := time.Now()
		if err := d.handler.Handle(l.WithContext(hctx), ev); err != nil {
			updatesTotal.WithLabelValues("failed").Inc()
			l.Error().Err(err).Msg("event dropped")
			return nil
		}
		l.Debug().Dur("took", time.Since(start)).Msg("event handled")
		return nil
	})
}

// Wait blocks until every dispatched event has been handled.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}
