// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model (user <-> forum topic mapping).
//
// All functions are context-aware and accept a *gorm.DB handle.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - A missing conversation is not an error: lookups return (nil, nil).
//   - A concurrent insert for the same user is not an error either:
//     CreateConversation returns the row that won.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// CreateConversation inserts the mapping userID -> (forumChatID, threadID).
//
// If a conversation for userID already exists, the insert loses: the existing
// row is returned with created=false and the given threadID is not stored.
// Callers must use the returned row, never their own arguments.
func CreateConversation(ctx context.Context, db *gorm.DB, userID, forumChatID, threadID int64) (*domain.Conversation, bool, error) {
	c := &domain.Conversation{
		UserID:      userID,
		ForumChatID: forumChatID,
		ThreadID:    threadID,
		CreatedAt:   time.Now().UTC(),
	}
	err := db.WithContext(ctx).Create(c).Error
	if err == nil {
		return c, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	existing, gerr := GetConversationByUser(ctx, db, userID)
	if gerr != nil {
		return nil, false, gerr
	}
	if existing == nil {
		// The violation was on the thread, not the user: a topic already
		// mapped to somebody else. That is a real inconsistency.
		return nil, false, err
	}
	return existing, false, nil
}

// GetConversationByUser returns the conversation for userID, or nil if the
// user has never written to the bot.
func GetConversationByUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationByThread returns the conversation mapped to the given topic,
// or nil when the topic is not tracked (e.g. a staff-only topic).
func GetConversationByThread(ctx context.Context, db *gorm.DB, forumChatID, threadID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("forum_chat_id = ? AND thread_id = ?", forumChatID, threadID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountConversations returns the number of mapped users.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Count(&total).Error
	return total, err
}
