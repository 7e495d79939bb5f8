package domain

// EventKind distinguishes newly posted messages from edits.
type EventKind int

const (
	EventNewMessage EventKind = iota
	EventEditedMessage
)

// String returns the metric/log label for the kind.
func (k EventKind) String() string {
	if k == EventEditedMessage {
		return "edited"
	}
	return "new"
}

// ChatTypePrivate is the chat type of a one-to-one chat between a user and the bot.
const ChatTypePrivate = "private"

// Event is a transport-neutral inbound message event. Zero ids mean "absent":
// Telegram never assigns 0 to a message or topic.
type Event struct {
	UpdateID int64
	Kind     EventKind

	ChatID   int64
	ChatType string
	ThreadID int64

	SenderID       int64
	SenderIsBot    bool
	SenderName     string
	SenderUsername string

	MessageID int64
	// Text holds the message text, or the caption for media messages.
	Text string

	ReplyToMessageID int64
	ReplyToText      string

	Quote *Quote
}

// IsPrivate reports whether the event came from a private chat.
func (e Event) IsPrivate() bool { return e.ChatType == ChatTypePrivate }

// Quote is the manually selected fragment of the replied-to message.
type Quote struct {
	Text     string          `json:"text"`
	Entities []MessageEntity `json:"entities,omitempty"`
	Position *int            `json:"position,omitempty"`
}

// MessageEntity is a formatting annotation on a span of text. It is passed
// through untouched when a quote is relayed.
type MessageEntity struct {
	Type          string `json:"type"`
	Offset        int    `json:"offset"`
	Length        int    `json:"length"`
	URL           string `json:"url,omitempty"`
	Language      string `json:"language,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// ReplyParameters describes the reply linkage of an outgoing copy.
type ReplyParameters struct {
	MessageID     int64           `json:"message_id"`
	Quote         string          `json:"quote,omitempty"`
	QuoteEntities []MessageEntity `json:"quote_entities,omitempty"`
	QuotePosition *int            `json:"quote_position,omitempty"`
	// AllowSendingWithoutReply keeps the copy deliverable when a heuristic
	// target does not exist in the destination chat.
	AllowSendingWithoutReply bool `json:"allow_sending_without_reply,omitempty"`
}

// CopyRequest asks the transport to copy a message into another chat.
type CopyRequest struct {
	FromChatID int64
	MessageID  int64
	ChatID     int64
	ThreadID   int64
	Reply      *ReplyParameters
}

// Notification is a bot-authored text message.
type Notification struct {
	ChatID           int64
	ThreadID         int64
	Text             string
	ParseMode        string
	ReplyToMessageID int64
}
