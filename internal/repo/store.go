package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// Store binds the package-level repository functions to one *gorm.DB so they
// can be passed around behind the interfaces declared by the services and bot
// packages.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// CreateConversation maps userID to a topic; see the package function for
// the lost-race semantics.
func (s *Store) CreateConversation(ctx context.Context, userID, forumChatID, threadID int64) (*domain.Conversation, bool, error) {
	return CreateConversation(ctx, s.DB, userID, forumChatID, threadID)
}

// GetConversationByUser returns the user's conversation, or nil.
func (s *Store) GetConversationByUser(ctx context.Context, userID int64) (*domain.Conversation, error) {
	return GetConversationByUser(ctx, s.DB, userID)
}

// GetConversationByThread returns the conversation owning the topic, or nil.
func (s *Store) GetConversationByThread(ctx context.Context, forumChatID, threadID int64) (*domain.Conversation, error) {
	return GetConversationByThread(ctx, s.DB, forumChatID, threadID)
}

// LinkMessage records that userMessageID and groupMessageID are the same
// message on both sides. If either end is already linked, nothing changes.
func (s *Store) LinkMessage(ctx context.Context, userID, userMessageID, forumChatID, threadID, groupMessageID int64) error {
	return LinkMessage(ctx, s.DB, userID, userMessageID, forumChatID, threadID, groupMessageID)
}

// GetGroupMessageID resolves a user-side message to its copy in the topic.
func (s *Store) GetGroupMessageID(ctx context.Context, userID, userMessageID int64) (int64, bool, error) {
	return GetGroupMessageID(ctx, s.DB, userID, userMessageID)
}

// GetUserMessageID resolves a topic message to its copy in the private chat.
func (s *Store) GetUserMessageID(ctx context.Context, forumChatID, threadID, groupMessageID int64) (int64, bool, error) {
	return GetUserMessageID(ctx, s.DB, forumChatID, threadID, groupMessageID)
}

// GetMeta reads a bot_meta value; ok is false when the key is unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	return GetMeta(ctx, s.DB, key)
}

// SetMeta upserts a bot_meta value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return SetMeta(ctx, s.DB, key, value)
}

// CreateUpdateReceipt claims updateID for ttl. It returns ErrDuplicate when
// the update was already claimed.
func (s *Store) CreateUpdateReceipt(ctx context.Context, updateID int64, ttl time.Duration) error {
	_, err := CreateUpdateReceipt(ctx, s.DB, updateID, ttl)
	return err
}

// PurgeUpdateReceipts deletes receipts expired at now and returns how many.
func (s *Store) PurgeUpdateReceipts(ctx context.Context, now time.Time) (int64, error) {
	return PurgeUpdateReceipts(ctx, s.DB, now)
}

// CountConversations returns the number of users mapped to a topic.
func (s *Store) CountConversations(ctx context.Context) (int64, error) {
	return CountConversations(ctx, s.DB)
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
