// Package domain defines the persistence models for the relay: the mapping
// between a private user and their forum topic, and the links between each
// relayed message and its copy. These types are mapped with GORM and form the
// core data layer of the bot.
package domain

import "time"

// Conversation maps one private user to the forum topic created for them in
// the staff group.
//
// Fields:
//   - UserID: Telegram user id; primary key, so at most one row per user.
//   - ForumChatID: id of the staff supergroup.
//   - ThreadID: message_thread_id of the user's topic inside that group.
//   - CreatedAt: set once on insert.
//
// (ForumChatID, ThreadID) is unique: no two users ever share a topic.
// Rows are append-only; they are never updated or deleted.
type Conversation struct {
	UserID      int64     `json:"user_id"       gorm:"primaryKey;autoIncrement:false"`
	ForumChatID int64     `json:"forum_chat_id" gorm:"not null;uniqueIndex:idx_conversations_thread,priority:1"`
	ThreadID    int64     `json:"thread_id"     gorm:"not null;uniqueIndex:idx_conversations_thread,priority:2"`
	CreatedAt   time.Time `json:"created_at"    gorm:"not null"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// MessageLink pairs a message in the user's private chat with its relayed
// counterpart in the forum topic. The direction of the relay does not matter:
// a user message copied into the topic and a staff message copied to the user
// are both stored as (user side, group side).
//
// (UserID, UserMessageID) is the primary key and
// (ForumChatID, ThreadID, GroupMessageID) is unique, so a link is queryable
// from both ends.
type MessageLink struct {
	UserID        int64 `json:"user_id"         gorm:"primaryKey;autoIncrement:false"`
	UserMessageID int64 `json:"user_message_id" gorm:"primaryKey;autoIncrement:false"`

	ForumChatID    int64 `json:"forum_chat_id"    gorm:"not null;uniqueIndex:uq_group_msg,priority:1"`
	ThreadID       int64 `json:"thread_id"        gorm:"not null;uniqueIndex:uq_group_msg,priority:2"`
	GroupMessageID int64 `json:"group_message_id" gorm:"not null;uniqueIndex:uq_group_msg,priority:3"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// TableName returns the database table name for MessageLink.
func (MessageLink) TableName() string { return "message_links" }

// BotMeta is a small key/value table for bot runtime state that must survive
// restarts (e.g. the long-poll update offset).
type BotMeta struct {
	Key   string `gorm:"type:varchar(64);primaryKey"`
	Value string `gorm:"type:text;not null"`
}

// TableName returns the database table name for BotMeta.
func (BotMeta) TableName() string { return "bot_meta" }
