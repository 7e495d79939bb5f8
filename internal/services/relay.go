// Package services – Relay
//
// This file implements Relay, the router that moves messages between users'
// private chats and their topics in the staff forum group. For every inbound
// event it picks a direction, makes sure the user has a topic, resolves reply
// context, copies the message and records the link between source and copy.
// Edits are never re-copied; the other side gets a short UPDATE notice
// replying to the linked copy instead.
//
// Observability: Handle is OpenTelemetry-instrumented and every event is
// counted in relay_events_total by direction, kind and outcome.

package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/forum-relay-bot/internal/domain"
	"github.com/tbourn/forum-relay-bot/internal/sysutil"
)

const (
	// maxTopicTitleRunes is the Bot API limit for forum topic names.
	maxTopicTitleRunes = 128

	editNoticePrefix = "<b>UPDATE</b>\n\n"
	parseModeHTML    = "HTML"
)

// Transport is the outbound half of the messaging platform as the relay
// needs it. It is satisfied by *telegram.Transport.
type Transport interface {
	// CreateThread creates a forum topic titled title and returns its thread id.
	CreateThread(ctx context.Context, forumChatID int64, title string) (int64, error)
	// CopyMessage copies a message and returns the id of the copy.
	CopyMessage(ctx context.Context, req domain.CopyRequest) (int64, error)
	// SendNotification sends a bot-authored text message.
	SendNotification(ctx context.Context, n domain.Notification) error
}

// Relay routes inbound events. It holds no per-event state and is safe for
// concurrent use.
type Relay struct {
	Store       LinkStore
	Transport   Transport
	Directory   *ConversationDirectory
	Resolver    ReplyResolver
	ForumChatID int64
	Log         zerolog.Logger
}

// NewRelay wires a Relay for the given staff group.
func NewRelay(store LinkStore, transport Transport, forumChatID int64, log zerolog.Logger) *Relay {
	return &Relay{
		Store:       store,
		Transport:   transport,
		Directory:   NewConversationDirectory(store, log),
		ForumChatID: forumChatID,
		Log:         log,
	}
}

// Handle routes one event. Events that do not concern the relay (other
// chats, the group's general topic, bot echoes, untracked topics) are
// ignored without error. Returned errors wrap ErrThreadCreateFailed or
// ErrRelayFailed, or come from storage.
func (r *Relay) Handle(ctx context.Context, ev domain.Event) error {
	tr := otel.Tracer("services/Relay")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.Int64("chat.id", ev.ChatID),
			attribute.Int64("message.id", ev.MessageID),
			attribute.String("event.kind", ev.Kind.String()),
		),
	)
	defer span.End()

	direction := directionNone
	outcome := outcomeIgnored
	var err error

	switch {
	case ev.IsPrivate():
		direction = directionToGroup
		if ev.Kind == domain.EventEditedMessage {
			outcome, err = r.editFromUser(ctx, ev)
		} else {
			outcome, err = r.relayFromUser(ctx, ev)
		}
	case ev.ChatID == r.ForumChatID && ev.ThreadID != 0:
		direction = directionToUser
		if ev.Kind == domain.EventEditedMessage {
			outcome, err = r.editFromGroup(ctx, ev)
		} else {
			outcome, err = r.relayFromGroup(ctx, ev)
		}
	}

	relayEvents.WithLabelValues(direction, ev.Kind.String(), outcome).Inc()
	span.SetAttributes(
		attribute.String("relay.direction", direction),
		attribute.String("relay.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// relayFromUser copies a private message into the user's topic, creating
// the topic on first contact.
func (r *Relay) relayFromUser(ctx context.Context, ev domain.Event) (string, error) {
	userID := ev.ChatID

	conv, err := r.Directory.Ensure(ctx, userID, r.ForumChatID, func(ctx context.Context) (int64, error) {
		return r.Transport.CreateThread(ctx, r.ForumChatID, TopicTitle(ev))
	})
	if err != nil {
		return outcomeFailed, err
	}

	lookup := func(ctx context.Context, id int64) (int64, bool, error) {
		return r.Store.GetGroupMessageID(ctx, userID, id)
	}
	target, ok, err := r.Resolver.Resolve(ctx, ev, lookup, true)
	if err != nil {
		return outcomeFailed, err
	}
	var reply *domain.ReplyParameters
	if ok {
		reply = BuildReplyParameters(ev.Quote, target)
	} else {
		r.logUnresolvedQuote(ev)
	}

	copyID, err := r.Transport.CopyMessage(ctx, domain.CopyRequest{
		FromChatID: ev.ChatID,
		MessageID:  ev.MessageID,
		ChatID:     conv.ForumChatID,
		ThreadID:   conv.ThreadID,
		Reply:      reply,
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("%w: %w", ErrRelayFailed, err)
	}

	if err := r.Store.LinkMessage(ctx, userID, ev.MessageID, conv.ForumChatID, conv.ThreadID, copyID); err != nil {
		return outcomeFailed, err
	}
	return outcomeRelayed, nil
}

// relayFromGroup copies a staff message from a topic to the topic's user.
func (r *Relay) relayFromGroup(ctx context.Context, ev domain.Event) (string, error) {
	// Our own copies show up in the group too.
	if ev.SenderIsBot {
		return outcomeIgnored, nil
	}
	conv, err := r.Store.GetConversationByThread(ctx, ev.ChatID, ev.ThreadID)
	if err != nil {
		return outcomeFailed, err
	}
	if conv == nil {
		return outcomeIgnored, nil
	}

	lookup := func(ctx context.Context, id int64) (int64, bool, error) {
		return r.Store.GetUserMessageID(ctx, ev.ChatID, ev.ThreadID, id)
	}
	target, ok, err := r.Resolver.Resolve(ctx, ev, lookup, false)
	if err != nil {
		return outcomeFailed, err
	}
	var reply *domain.ReplyParameters
	if ok {
		reply = BuildReplyParameters(ev.Quote, target)
	} else {
		r.logUnresolvedQuote(ev)
	}

	copyID, err := r.Transport.CopyMessage(ctx, domain.CopyRequest{
		FromChatID: ev.ChatID,
		MessageID:  ev.MessageID,
		ChatID:     conv.UserID,
		Reply:      reply,
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("%w: %w", ErrRelayFailed, err)
	}

	if err := r.Store.LinkMessage(ctx, conv.UserID, copyID, ev.ChatID, ev.ThreadID, ev.MessageID); err != nil {
		return outcomeFailed, err
	}
	return outcomeRelayed, nil
}

// editFromUser tells the staff topic that a relayed user message changed.
func (r *Relay) editFromUser(ctx context.Context, ev domain.Event) (string, error) {
	userID := ev.ChatID
	conv, err := r.Store.GetConversationByUser(ctx, userID)
	if err != nil {
		return outcomeFailed, err
	}
	if conv == nil {
		return outcomeIgnored, nil
	}
	groupMsgID, ok, err := r.Store.GetGroupMessageID(ctx, userID, ev.MessageID)
	if err != nil {
		return outcomeFailed, err
	}
	if !ok {
		return outcomeIgnored, nil
	}

	return r.notify(ctx, domain.Notification{
		ChatID:           conv.ForumChatID,
		ThreadID:         conv.ThreadID,
		Text:             EditNotice(ev.Text),
		ParseMode:        parseModeHTML,
		ReplyToMessageID: groupMsgID,
	}), nil
}

// editFromGroup tells the user that a relayed staff message changed.
func (r *Relay) editFromGroup(ctx context.Context, ev domain.Event) (string, error) {
	if ev.SenderIsBot {
		return outcomeIgnored, nil
	}
	conv, err := r.Store.GetConversationByThread(ctx, ev.ChatID, ev.ThreadID)
	if err != nil {
		return outcomeFailed, err
	}
	if conv == nil {
		return outcomeIgnored, nil
	}
	userMsgID, ok, err := r.Store.GetUserMessageID(ctx, ev.ChatID, ev.ThreadID, ev.MessageID)
	if err != nil {
		return outcomeFailed, err
	}
	if !ok {
		return outcomeIgnored, nil
	}

	return r.notify(ctx, domain.Notification{
		ChatID:           conv.UserID,
		Text:             EditNotice(ev.Text),
		ParseMode:        parseModeHTML,
		ReplyToMessageID: userMsgID,
	}), nil
}

// notify sends an edit notice. Failures are logged and swallowed: the edit
// already happened on the source side and there is nothing to roll back.
func (r *Relay) notify(ctx context.Context, n domain.Notification) string {
	if err := r.Transport.SendNotification(ctx, n); err != nil {
		r.Log.Error().Err(err).
			Int64("chat_id", n.ChatID).
			Int64("reply_to", n.ReplyToMessageID).
			Msg("failed to send edit notice")
		return outcomeFailed
	}
	return outcomeNotified
}

func (r *Relay) logUnresolvedQuote(ev domain.Event) {
	if ev.Quote == nil {
		return
	}
	e := r.Log.Info().
		Int64("chat_id", ev.ChatID).
		Int64("message_id", ev.MessageID).
		Str("quote", ev.Quote.Text)
	if ev.ReplyToMessageID != 0 {
		e = e.Str("replied_text", ev.ReplyToText)
	}
	e.Msg("quote without resolvable target; relaying without reply")
}

// TopicTitle names the forum topic for the sender of ev:
// "<full name, else username, else id> <id>", NFC-normalized and clipped to
// the Bot API limit.
func TopicTitle(ev domain.Event) string {
	userID := strconv.FormatInt(ev.ChatID, 10)
	name := sysutil.FirstNonEmpty(ev.SenderName, ev.SenderUsername, userID)
	title := norm.NFC.String(name + " " + userID)
	if utf8.RuneCountInString(title) > maxTopicTitleRunes {
		title = string([]rune(title)[:maxTopicTitleRunes])
	}
	return title
}

// EditNotice formats the notice sent when a relayed message is edited. The
// edited text is escaped because the notice is sent in HTML parse mode.
func EditNotice(text string) string {
	return editNoticePrefix + html.EscapeString(text)
}
