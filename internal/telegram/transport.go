package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// maxRetryAfter caps how long a single call waits out flood control before
// giving up.
const maxRetryAfter = 30 * time.Second

// API is the part of *bot.Bot the transport calls.
type API interface {
	CreateForumTopic(ctx context.Context, params *bot.CreateForumTopicParams) (*models.ForumTopic, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var _ API = (*bot.Bot)(nil)

// Transport adapts the Bot API client to the relay's outbound contract. All
// calls share one token bucket so bursts of relays stay under the Bot API
// flood limits.
type Transport struct {
	API     API
	Limiter *rate.Limiter
	// Token is scrubbed from returned errors.
	Token string
}

// NewTransport wraps api with a limiter allowing rps calls per second with
// the given burst.
func NewTransport(api API, token string, rps float64, burst int) *Transport {
	return &Transport{API: api, Token: token, Limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// CreateThread creates a forum topic and returns its thread id.
func (t *Transport) CreateThread(ctx context.Context, forumChatID int64, title string) (int64, error) {
	var topic *models.ForumTopic
	err := t.do(ctx, "createForumTopic", func(ctx context.Context) error {
		var err error
		topic, err = t.API.CreateForumTopic(ctx, &bot.CreateForumTopicParams{ChatID: forumChatID, Name: title})
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(topic.MessageThreadID), nil
}

// CopyMessage copies a message without a forward header and returns the id
// of the copy. A zero ThreadID targets no topic.
func (t *Transport) CopyMessage(ctx context.Context, req domain.CopyRequest) (int64, error) {
	params := &bot.CopyMessageParams{
		ChatID:          req.ChatID,
		MessageThreadID: int(req.ThreadID),
		FromChatID:      req.FromChatID,
		MessageID:       int(req.MessageID),
		ReplyParameters: toReplyParameters(req.Reply),
	}
	var id *models.MessageID
	err := t.do(ctx, "copyMessage", func(ctx context.Context) error {
		var err error
		id, err = t.API.CopyMessage(ctx, params)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(id.ID), nil
}

// SendNotification sends a bot-authored text message.
func (t *Transport) SendNotification(ctx context.Context, n domain.Notification) error {
	params := &bot.SendMessageParams{
		ChatID:          n.ChatID,
		MessageThreadID: int(n.ThreadID),
		Text:            n.Text,
		ParseMode:       models.ParseMode(n.ParseMode),
	}
	if n.ReplyToMessageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                int(n.ReplyToMessageID),
			AllowSendingWithoutReply: true,
		}
	}
	return t.do(ctx, "sendMessage", func(ctx context.Context) error {
		_, err := t.API.SendMessage(ctx, params)
		return err
	})
}

// do waits for a token, runs call, and retries once when Telegram answers
// with a flood-control retry_after that fits under maxRetryAfter.
func (t *Transport) do(ctx context.Context, method string, call func(context.Context) error) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	err := call(ctx)
	if wait, ok := retryAfter(err); ok {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			if err = t.wait(ctx); err == nil {
				err = call(ctx)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, RedactToken(err, t.Token))
	}
	return nil
}

// retryAfter reports the flood-control delay carried by err, if it is one
// worth waiting for.
func retryAfter(err error) (time.Duration, bool) {
	var flood *bot.TooManyRequestsError
	if !errors.As(err, &flood) {
		return 0, false
	}
	d := time.Duration(flood.RetryAfter) * time.Second
	if d <= 0 || d > maxRetryAfter {
		return 0, false
	}
	return d, true
}

func (t *Transport) wait(ctx context.Context) error {
	if t.Limiter == nil {
		return nil
	}
	return t.Limiter.Wait(ctx)
}
