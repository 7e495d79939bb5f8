package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/tbourn/forum-relay-bot/internal/telegram"
)

// OffsetKey is the bot_meta key holding the next update id to request.
const OffsetKey = "telegram.update_offset"

// OffsetStore persists the poll offset. *repo.Store implements it.
type OffsetStore interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Starter runs the long-poll loop until ctx is cancelled. *bot.Bot
// implements it.
type Starter interface {
	Start(ctx context.Context)
}

// Poller plugs the Bot API client's long-poll loop into the dispatcher and
// keeps the next update id in bot_meta, so a restart resumes after the last
// update that was scheduled.
//
// The client confirms a batch to Telegram when it asks for the next one,
// before the batch has been handled. Polling is therefore at-most-once: a
// crash loses the updates in flight, and the stored offset never replays
// them.
type Poller struct {
	Offsets    OffsetStore
	Dispatcher *Dispatcher
	// Token is scrubbed from logged poll errors.
	Token string
	Log   zerolog.Logger

	mu      sync.Mutex
	next    int64
	stopped bool
}

// Options loads the stored offset and returns the client options that route
// polled updates through p and resume from that offset. It fails only when
// the offset cannot be read.
func (p *Poller) Options(ctx context.Context) ([]tgbot.Option, error) {
	next, err := p.loadOffset(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.next = next
	p.mu.Unlock()

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(p.Handle),
		tgbot.WithErrorsHandler(func(err error) {
			p.Log.Warn().Err(telegram.RedactToken(err, p.Token)).Msg("getUpdates failed")
		}),
	}
	if next > 0 {
		// The client requests the update after the last one it saw.
		opts = append(opts, tgbot.WithInitialOffset(next-1))
	}
	return opts, nil
}

// Handle schedules one polled update and records the offset after it. It
// has the signature of a bot.HandlerFunc.
func (p *Poller) Handle(ctx context.Context, _ *tgbot.Bot, u *models.Update) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.Log.Warn().Int64("update_id", u.ID).Msg("update arrived after polling stopped")
		return
	}

	p.Dispatcher.Dispatch(ctx, u)

	// Handlers may run out of order; the offset only moves forward.
	if u.ID < p.next {
		return
	}
	p.next = u.ID + 1
	// Shutdown must not lose the commit for an update that was scheduled.
	if err := p.Offsets.SetMeta(context.WithoutCancel(ctx), OffsetKey, strconv.FormatInt(p.next, 10)); err != nil {
		p.Log.Warn().Err(err).Int64("offset", p.next).Msg("save offset failed")
	}
}

// Run polls through s until ctx is cancelled, then waits for every
// scheduled update to be handled.
func (p *Poller) Run(ctx context.Context, s Starter) {
	p.mu.Lock()
	p.Log.Info().Int64("offset", p.next).Msg("polling started")
	p.mu.Unlock()

	s.Start(ctx)

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.Dispatcher.Wait()
	p.Log.Info().Msg("polling stopped")
}

func (p *Poller) loadOffset(ctx context.Context) (int64, error) {
	v, ok, err := p.Offsets.GetMeta(ctx, OffsetKey)
	if err != nil {
		return 0, fmt.Errorf("load update offset: %w", err)
	}
	if !ok {
		return 0, nil
	}
	offset, err := strconv.ParseInt(v, 10, 64)
	if err != nil || offset < 0 {
		p.Log.Warn().Str("value", v).Msg("ignoring malformed stored offset")
		return 0, nil
	}
	return offset, nil
}
