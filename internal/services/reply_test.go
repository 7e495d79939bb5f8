package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

func TestExtractMessageID(t *testing.T) {
	cases := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"see /482 for details", 482, true},
		{"https://t.me/c/1234/482", 1234, true},
		{"ends with /9", 9, true},
		{"ref ?msg=77", 77, true},
		{"link?message=12&x=1", 12, true},
		{"a&m=5", 5, true},
		{"no digits here", 0, false},
		{"", 0, false},
		{"/abc", 0, false},
		// Overflowing path id falls through to the query pattern.
		{"/99999999999999999999 ?m=5", 5, true},
		{"/99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, ok := ExtractMessageID(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ExtractMessageID(%q) = (%d, %v); want (%d, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

// mapLookup builds a MessageLookup over a fixed table and records what was asked.
func mapLookup(m map[int64]int64, asked *[]int64) MessageLookup {
	return func(_ context.Context, id int64) (int64, bool, error) {
		*asked = append(*asked, id)
		v, ok := m[id]
		return v, ok, nil
	}
}

func TestResolve_ExplicitReplyWins(t *testing.T) {
	var asked []int64
	lookup := mapLookup(map[int64]int64{5: 500, 482: 4820}, &asked)
	ev := domain.Event{ReplyToMessageID: 5, Text: "see /482"}

	got, ok, err := ReplyResolver{}.Resolve(context.Background(), ev, lookup, true)
	if err != nil || !ok || got != 500 {
		t.Fatalf("Resolve = (%d, %v, %v); want (500, true, nil)", got, ok, err)
	}
	if len(asked) != 1 || asked[0] != 5 {
		t.Fatalf("expected a single lookup of the explicit reply id, got %v", asked)
	}
}

func TestResolve_ExplicitReplyMiss_NoFallback(t *testing.T) {
	var asked []int64
	lookup := mapLookup(map[int64]int64{482: 4820}, &asked)
	ev := domain.Event{ReplyToMessageID: 5, Text: "see /482"}

	got, ok, err := ReplyResolver{}.Resolve(context.Background(), ev, lookup, true)
	if err != nil || ok || got != 0 {
		t.Fatalf("Resolve = (%d, %v, %v); want (0, false, nil)", got, ok, err)
	}
	if len(asked) != 1 {
		t.Fatalf("text must not be consulted when an explicit reply exists, asked=%v", asked)
	}
}

func TestResolve_TextIDMapped(t *testing.T) {
	var asked []int64
	lookup := mapLookup(map[int64]int64{482: 4820}, &asked)
	ev := domain.Event{Text: "see /482 for details"}

	got, ok, _ := ReplyResolver{}.Resolve(context.Background(), ev, lookup, false)
	if !ok || got != 4820 {
		t.Fatalf("Resolve = (%d, %v); want (4820, true)", got, ok)
	}
}

func TestResolve_TextIDUnmapped_RawOnlyWhenAllowed(t *testing.T) {
	var asked []int64
	lookup := mapLookup(nil, &asked)
	ev := domain.Event{Text: "ref ?msg=77"}

	got, ok, _ := ReplyResolver{}.Resolve(context.Background(), ev, lookup, true)
	if !ok || got != 77 {
		t.Fatalf("with raw fallback: (%d, %v); want (77, true)", got, ok)
	}
	got, ok, _ = ReplyResolver{}.Resolve(context.Background(), ev, lookup, false)
	if ok || got != 0 {
		t.Fatalf("without raw fallback: (%d, %v); want (0, false)", got, ok)
	}
}

func TestResolve_NoReplyNoID(t *testing.T) {
	var asked []int64
	lookup := mapLookup(nil, &asked)
	got, ok, err := ReplyResolver{}.Resolve(context.Background(), domain.Event{Text: "hello"}, lookup, true)
	if got != 0 || ok || err != nil || len(asked) != 0 {
		t.Fatalf("unexpected: (%d, %v, %v) asked=%v", got, ok, err, asked)
	}
}

func TestResolve_LookupErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	lookup := func(context.Context, int64) (int64, bool, error) { return 0, false, boom }

	if _, _, err := (ReplyResolver{}).Resolve(context.Background(), domain.Event{Text: "/1"}, lookup, true); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if _, _, err := (ReplyResolver{}).Resolve(context.Background(), domain.Event{ReplyToMessageID: 3}, lookup, true); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestBuildReplyParameters(t *testing.T) {
	rp := BuildReplyParameters(nil, 9)
	if rp.MessageID != 9 || rp.Quote != "" || rp.QuoteEntities != nil || rp.QuotePosition != nil || !rp.AllowSendingWithoutReply {
		t.Fatalf("unexpected params without quote: %+v", rp)
	}

	pos := 3
	q := &domain.Quote{
		Text:     strings.Repeat("ж", 2000),
		Entities: []domain.MessageEntity{{Type: "bold", Offset: 0, Length: 2}},
		Position: &pos,
	}
	rp = BuildReplyParameters(q, 10)
	if n := utf8.RuneCountInString(rp.Quote); n != MaxQuoteRunes {
		t.Fatalf("quote runes = %d; want %d", n, MaxQuoteRunes)
	}
	if len(rp.QuoteEntities) != 1 || rp.QuoteEntities[0].Type != "bold" {
		t.Fatalf("entities not passed through: %+v", rp.QuoteEntities)
	}
	if rp.QuotePosition == nil || *rp.QuotePosition != 3 {
		t.Fatalf("position not passed through: %v", rp.QuotePosition)
	}

	short := BuildReplyParameters(&domain.Quote{Text: "hi"}, 1)
	if short.Quote != "hi" || short.QuotePosition != nil || short.QuoteEntities != nil {
		t.Fatalf("unexpected short quote params: %+v", short)
	}
}
