package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// ToEvent maps an update to a relay event. ok is false for update kinds the
// relay does not handle and for messages without a sender.
func ToEvent(u *models.Update) (domain.Event, bool) {
	if u == nil {
		return domain.Event{}, false
	}
	kind := domain.EventNewMessage
	m := u.Message
	if m == nil {
		kind = domain.EventEditedMessage
		m = u.EditedMessage
	}
	if m == nil || m.From == nil {
		return domain.Event{}, false
	}

	ev := domain.Event{
		UpdateID:       u.ID,
		Kind:           kind,
		ChatID:         m.Chat.ID,
		ChatType:       string(m.Chat.Type),
		SenderID:       m.From.ID,
		SenderIsBot:    m.From.IsBot,
		SenderName:     fullName(m.From),
		SenderUsername: m.From.Username,
		MessageID:      int64(m.ID),
		Text:           textOrCaption(m),
	}
	// Outside forums message_thread_id also tags reply threads; only topic
	// messages carry a topic id.
	if m.IsTopicMessage {
		ev.ThreadID = int64(m.MessageThreadID)
	}

	// Every message in a topic implicitly replies to the topic's opening
	// service message. That is not a user-chosen reply.
	if r := m.ReplyToMessage; r != nil && r.ForumTopicCreated == nil {
		ev.ReplyToMessageID = int64(r.ID)
		ev.ReplyToText = textOrCaption(r)
	}

	if q := m.Quote; q != nil {
		pos := q.Position
		ev.Quote = &domain.Quote{
			Text:     q.Text,
			Entities: fromEntities(q.Entities),
			Position: &pos,
		}
	}
	return ev, true
}

func fullName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// textOrCaption returns the message text, or the caption for media.
func textOrCaption(m *models.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

func fromEntities(in []models.MessageEntity) []domain.MessageEntity {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.MessageEntity, len(in))
	for i, e := range in {
		out[i] = domain.MessageEntity{
			Type:          string(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
	}
	return out
}

func toEntities(in []domain.MessageEntity) []models.MessageEntity {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.MessageEntity, len(in))
	for i, e := range in {
		out[i] = models.MessageEntity{
			Type:          models.MessageEntityType(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
	}
	return out
}

// toReplyParameters converts the relay's reply linkage to the Bot API shape.
func toReplyParameters(rp *domain.ReplyParameters) *models.ReplyParameters {
	if rp == nil {
		return nil
	}
	out := &models.ReplyParameters{
		MessageID:                int(rp.MessageID),
		Quote:                    rp.Quote,
		QuoteEntities:            toEntities(rp.QuoteEntities),
		AllowSendingWithoutReply: rp.AllowSendingWithoutReply,
	}
	if rp.QuotePosition != nil {
		out.QuotePosition = *rp.QuotePosition
	}
	return out
}
