package services

import (
	"context"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// MaxQuoteRunes is the longest quote Telegram accepts in reply parameters.
const MaxQuoteRunes = 1024

// Message-id patterns found in pasted message links, tried in order:
// a path segment (".../c/123/482") and a query parameter ("?msg=77").
var messageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/(\d+)(?:$|\D)`),
	regexp.MustCompile(`[?&](?:message|msg|m)=(\d+)`),
}

// ExtractMessageID pulls a message id out of free text. The first pattern
// whose digits parse as an int64 wins; a match that overflows falls through
// to the next pattern.
func ExtractMessageID(text string) (int64, bool) {
	for _, re := range messageIDPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

// MessageLookup translates a message id in the source chat into the linked
// message id in the destination chat.
type MessageLookup func(ctx context.Context, sourceMessageID int64) (int64, bool, error)

// ReplyResolver decides which destination message a relayed copy should
// reply to. It is stateless.
type ReplyResolver struct{}

// Resolve returns the destination message the copy of ev should reply to.
//
//  1. An explicit reply is authoritative: its id is looked up and, when the
//     lookup misses, there is no target at all.
//  2. Otherwise an id is extracted from the text or caption and looked up.
//     If that misses and allowRaw is set, the extracted id itself is used.
//
// ok is false when there is nothing to reply to. Lookup errors are returned.
func (ReplyResolver) Resolve(ctx context.Context, ev domain.Event, lookup MessageLookup, allowRaw bool) (int64, bool, error) {
	if ev.ReplyToMessageID != 0 {
		return lookup(ctx, ev.ReplyToMessageID)
	}

	id, found := ExtractMessageID(ev.Text)
	if !found {
		return 0, false, nil
	}
	target, ok, err := lookup(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return target, true, nil
	}
	if allowRaw {
		// The id was never relayed by us; it may still happen to exist in
		// the destination chat.
		return id, true, nil
	}
	return 0, false, nil
}

// BuildReplyParameters makes reply parameters pointing at target, carrying
// over the selected quote when there is one.
func BuildReplyParameters(quote *domain.Quote, target int64) *domain.ReplyParameters {
	rp := &domain.ReplyParameters{
		MessageID: target,
		// A stale or heuristic target must not block delivery.
		AllowSendingWithoutReply: true,
	}
	if quote == nil {
		return rp
	}
	rp.Quote = truncateRunes(quote.Text, MaxQuoteRunes)
	if len(quote.Entities) > 0 {
		rp.QuoteEntities = quote.Entities
	}
	if quote.Position != nil {
		pos := *quote.Position
		rp.QuotePosition = &pos
	}
	return rp
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
