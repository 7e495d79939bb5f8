// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for MessageLink:
// the pairing between a private-chat message and its copy in a forum topic.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// LinkMessage records that userMessageID in the user's private chat and
// groupMessageID in the forum topic are the same logical message.
//
// Linking is idempotent: if either end is already linked the insert is a
// no-op and the existing link is left untouched.
func LinkMessage(ctx context.Context, db *gorm.DB, userID, userMessageID, forumChatID, threadID, groupMessageID int64) error {
	l := &domain.MessageLink{
		UserID:         userID,
		UserMessageID:  userMessageID,
		ForumChatID:    forumChatID,
		ThreadID:       threadID,
		GroupMessageID: groupMessageID,
		CreatedAt:      time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(l).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

// GetGroupMessageID returns the forum-side message id linked to the given
// private-chat message. ok is false when no link exists.
func GetGroupMessageID(ctx context.Context, db *gorm.DB, userID, userMessageID int64) (int64, bool, error) {
	var l domain.MessageLink
	err := db.WithContext(ctx).
		Where("user_id = ? AND user_message_id = ?", userID, userMessageID).
		Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return l.GroupMessageID, true, nil
}

// GetUserMessageID returns the private-chat message id linked to the given
// forum message. ok is false when no link exists.
func GetUserMessageID(ctx context.Context, db *gorm.DB, forumChatID, threadID, groupMessageID int64) (int64, bool, error) {
	var l domain.MessageLink
	err := db.WithContext(ctx).
		Where("forum_chat_id = ? AND thread_id = ? AND group_message_id = ?", forumChatID, threadID, groupMessageID).
		Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return l.UserMessageID, true, nil
}
