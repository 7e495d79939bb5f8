// Package telegram connects the relay to the Bot API through
// github.com/go-telegram/bot: client construction, the forum check run at
// startup, update conversion, and the rate-limited outbound transport.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultServerURL is the public Bot API endpoint.
const DefaultServerURL = "https://api.telegram.org"

const chatTypeSupergroup = "supergroup"

// AllowedUpdates are the update kinds the relay subscribes to.
var AllowedUpdates = bot.AllowedUpdates{"message", "edited_message"}

var (
	// ErrNotSupergroup is returned by CheckForum for any other chat type.
	ErrNotSupergroup = errors.New("telegram: chat is not a supergroup")
	// ErrTopicsDisabled is returned by CheckForum when the supergroup has no topics.
	ErrTopicsDisabled = errors.New("telegram: topics are not enabled in the chat")
)

// New returns a Bot API client for token without contacting Telegram. An
// empty serverURL selects the public endpoint. pollTimeout is how long
// getUpdates is held open when the client polls; opts are applied last.
func New(token, serverURL string, pollTimeout time.Duration, opts ...bot.Option) (*bot.Bot, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	base := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithServerURL(serverURL),
		// The library asks Telegram to hold getUpdates one second less than
		// the poll timeout it is given.
		bot.WithHTTPClient(pollTimeout+time.Second, &http.Client{Timeout: pollTimeout + 15*time.Second}),
		bot.WithAllowedUpdates(AllowedUpdates),
	}
	b, err := bot.New(token, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("telegram: new client: %w", err)
	}
	return b, nil
}

// ChatGetter fetches full chat info. *bot.Bot implements it.
type ChatGetter interface {
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
}

// CheckForum verifies that chatID is a supergroup with topics enabled, the
// only kind of chat in which the relay can open one topic per user.
func CheckForum(ctx context.Context, api ChatGetter, chatID int64) (*models.ChatFullInfo, error) {
	chat, err := api.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("telegram getChat %d: %w", chatID, err)
	}
	if string(chat.Type) != chatTypeSupergroup {
		return chat, fmt.Errorf("%w: chat %d has type %q", ErrNotSupergroup, chatID, chat.Type)
	}
	if !chat.IsForum {
		return chat, fmt.Errorf("%w: enable topics in the settings of chat %d", ErrTopicsDisabled, chatID)
	}
	return chat, nil
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

// RedactToken hides token in err's message. Transport failures carry the
// request URL, and the URL carries the token.
func RedactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), cause: err}
}
