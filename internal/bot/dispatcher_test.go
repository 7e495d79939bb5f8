package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tbourn/forum-relay-bot/internal/domain"
	"github.com/tbourn/forum-relay-bot/internal/repo"
)

// ----- fakes -----

type fakeHandler struct {
	mu     sync.Mutex
	events []domain.Event
	ctxErr []error
	err    error
	delay  time.Duration

	running int32
	maxSeen int32
}

func (h *fakeHandler) Handle(ctx context.Context, ev domain.Event) error {
	n := atomic.AddInt32(&h.running, 1)
	defer atomic.AddInt32(&h.running, -1)
	for {
		max := atomic.LoadInt32(&h.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&h.maxSeen, max, n) {
			break
		}
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.ctxErr = append(h.ctxErr, ctx.Err())
	h.mu.Unlock()
	return h.err
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type fakeReceipts struct {
	mu   sync.Mutex
	seen map[int64]bool
	err  error
}

func (r *fakeReceipts) CreateUpdateReceipt(_ context.Context, id int64, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.seen == nil {
		r.seen = map[int64]bool{}
	}
	if r.seen[id] {
		return repo.ErrDuplicate
	}
	r.seen[id] = true
	return nil
}

func privateUpdate(updateID, msgID int64) *models.Update {
	return &models.Update{
		ID: updateID,
		Message: &models.Message{
			ID:   int(msgID),
			From: &models.User{ID: 42, FirstName: "A"},
			Chat: models.Chat{ID: 42, Type: "private"},
			Text: "hi",
		},
	}
}

// ----- tests -----

func TestDispatcher_HandlesAndDropsDuplicates(t *testing.T) {
	h := &fakeHandler{}
	d := NewDispatcher(h, &fakeReceipts{}, time.Hour, 4, zerolog.Nop())
	ctx := context.Background()

	dupBefore := testutil.ToFloat64(updatesTotal.WithLabelValues("duplicate"))

	d.Dispatch(ctx, privateUpdate(1, 10))
	d.Dispatch(ctx, privateUpdate(1, 10))
	d.Dispatch(ctx, privateUpdate(2, 11))
	d.Wait()

	if got := h.count(); got != 2 {
		t.Fatalf("handled %d events; want 2", got)
	}
	if got := testutil.ToFloat64(updatesTotal.WithLabelValues("duplicate")) - dupBefore; got != 1 {
		t.Fatalf("duplicate counter delta = %v; want 1", got)
	}
}

func TestDispatcher_SkipsUnsupportedUpdates(t *testing.T) {
	h := &fakeHandler{}
	d := NewDispatcher(h, nil, time.Hour, 1, zerolog.Nop())

	d.Dispatch(context.Background(), &models.Update{ID: 3})
	d.Wait()
	if h.count() != 0 {
		t.Fatalf("unsupported update should not reach the handler")
	}
}

func TestDispatcher_ReceiptErrorStillHandles(t *testing.T) {
	h := &fakeHandler{}
	d := NewDispatcher(h, &fakeReceipts{err: errors.New("db locked")}, time.Hour, 1, zerolog.Nop())

	d.Dispatch(context.Background(), privateUpdate(1, 10))
	d.Wait()
	if h.count() != 1 {
		t.Fatalf("event should be handled when the receipt cannot be stored")
	}
}

func TestDispatcher_HandlerErrorIsContained(t *testing.T) {
	h := &fakeHandler{err: errors.New("relay failed")}
	d := NewDispatcher(h, nil, time.Hour, 2, zerolog.Nop())

	for i := int64(1); i <= 3; i++ {
		d.Dispatch(context.Background(), privateUpdate(i, i))
	}
	d.Wait()
	if h.count() != 3 {
		t.Fatalf("every event should be attempted despite errors, got %d", h.count())
	}
}

func TestDispatcher_FailedUpdateIsNotRedelivered(t *testing.T) {
	h := &fakeHandler{err: errors.New("telegram down")}
	d := NewDispatcher(h, &fakeReceipts{}, time.Hour, 1, zerolog.Nop())
	failedBefore := testutil.ToFloat64(updatesTotal.WithLabelValues("failed"))

	d.Dispatch(context.Background(), privateUpdate(5, 50))
	d.Wait()
	// Telegram retrying the same update finds the receipt already claimed.
	d.Dispatch(context.Background(), privateUpdate(5, 50))
	d.Wait()

	if h.count() != 1 {
		t.Fatalf("handled %d times; want exactly one attempt", h.count())
	}
	if got := testutil.ToFloat64(updatesTotal.WithLabelValues("failed")) - failedBefore; got != 1 {
		t.Fatalf("failed counter delta = %v; want 1", got)
	}
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	h := &fakeHandler{delay: 20 * time.Millisecond}
	d := NewDispatcher(h, nil, time.Hour, 2, zerolog.Nop())

	for i := int64(1); i <= 8; i++ {
		d.Dispatch(context.Background(), privateUpdate(i, i))
	}
	d.Wait()

	if h.count() != 8 {
		t.Fatalf("handled %d; want 8", h.count())
	}
	if max := atomic.LoadInt32(&h.maxSeen); max > 2 || max < 1 {
		t.Fatalf("max concurrent handlers = %d; want 1..2", max)
	}
}

func TestDispatcher_HandlingOutlivesCallerContext(t *testing.T) {
	h := &fakeHandler{delay: 10 * time.Millisecond}
	d := NewDispatcher(h, nil, time.Hour, 1, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, privateUpdate(1, 1))
	cancel()
	d.Wait()

	if h.count() != 1 || h.ctxErr[0] != nil {
		t.Fatalf("handler context must not be cancelled with the caller's: %v", h.ctxErr)
	}
}
