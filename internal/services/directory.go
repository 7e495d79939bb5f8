package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// LinkStore is the persistence contract the relay depends on. It is
// satisfied by *repo.Store; tests use an in-memory store or a fake.
type LinkStore interface {
	CreateConversation(ctx context.Context, userID, forumChatID, threadID int64) (*domain.Conversation, bool, error)
	GetConversationByUser(ctx context.Context, userID int64) (*domain.Conversation, error)
	GetConversationByThread(ctx context.Context, forumChatID, threadID int64) (*domain.Conversation, error)

	LinkMessage(ctx context.Context, userID, userMessageID, forumChatID, threadID, groupMessageID int64) error
	GetGroupMessageID(ctx context.Context, userID, userMessageID int64) (int64, bool, error)
	GetUserMessageID(ctx context.Context, forumChatID, threadID, groupMessageID int64) (int64, bool, error)
}

// ThreadFactory creates a new forum topic and returns its thread id.
type ThreadFactory func(ctx context.Context) (int64, error)

// ConversationDirectory returns the topic for a user, creating it on first
// contact. Concurrent first contacts for the same user are arbitrated by the
// store's uniqueness constraint, not by locking: every caller gets the same
// row, and topics created by losers are abandoned.
type ConversationDirectory struct {
	Store LinkStore
	Log   zerolog.Logger
}

// NewConversationDirectory builds a directory over store.
func NewConversationDirectory(store LinkStore, log zerolog.Logger) *ConversationDirectory {
	return &ConversationDirectory{Store: store, Log: log}
}

// Ensure returns the conversation for userID, calling newThread and storing
// the result when none exists yet. If newThread fails nothing is stored and
// the error wraps ErrThreadCreateFailed.
func (d *ConversationDirectory) Ensure(ctx context.Context, userID, forumChatID int64, newThread ThreadFactory) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationDirectory")
	ctx, span := tr.Start(ctx, "Ensure",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	conv, err := d.Store.GetConversationByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	threadID, err := newThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrThreadCreateFailed, err)
	}

	conv, created, err := d.Store.CreateConversation(ctx, userID, forumChatID, threadID)
	if err != nil {
		return nil, err
	}
	if created {
		threadsCreated.Inc()
		span.SetAttributes(attribute.Bool("thread.created", true))
		return conv, nil
	}

	// Lost the race: another event for the same user stored its topic first.
	orphanedThreads.Inc()
	d.Log.Warn().
		Int64("user_id", userID).
		Int64("orphaned_thread_id", threadID).
		Int64("thread_id", conv.ThreadID).
		Msg("conversation already created concurrently; new topic left unmapped")
	return conv, nil
}
