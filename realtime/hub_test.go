package realtime_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects every event a mux sees.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) mux() *realtime.Mux {
	m := realtime.NewMux()
	m.OnAny(func(_ context.Context, ev realtime.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return m
}

func (r *recorder) kinds() []realtime.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(k realtime.Kind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

func newHub(t *testing.T, opts ...realtime.HubOption) *realtime.Hub {
	t.Helper()
	h := realtime.NewHub(append([]realtime.HubOption{realtime.WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestMuxTypedHandlers(t *testing.T) {
	mux := realtime.NewMux()

	var paid []id.DishOrderID
	realtime.On(mux, func(_ context.Context, _ realtime.Event, p realtime.DishPaid) {
		paid = append(paid, p.DishIDs...)
	})
	refreshes := 0
	realtime.On(mux, func(context.Context, realtime.Event, realtime.FullRefresh) { refreshes++ })

	dishID := id.NewDishOrderID()
	mux.Dispatch(context.Background(), realtime.NewEvent("t1", realtime.DishPaid{DishIDs: []id.DishOrderID{dishID}}))
	mux.Dispatch(context.Background(), realtime.NewEvent("t1", realtime.SummaryUpdate{}))
	mux.Dispatch(context.Background(), realtime.NewEvent("t1", realtime.FullRefresh{}))

	require.Len(t, paid, 1)
	assert.Equal(t, dishID.String(), paid[0].String())
	assert.Equal(t, 1, refreshes)
	assert.True(t, mux.Handles(realtime.KindDishPaid))
	assert.False(t, mux.Handles(realtime.KindUserLeft))
}

func TestEventWireFormat(t *testing.T) {
	ev := realtime.NewEvent("t1", realtime.DishStatusChanged{DishID: id.NewDishOrderID(), Status: dish.StatusPaid})
	ev.Origin = "node-a"

	data, err := realtime.Encode(ev)
	require.NoError(t, err)

	got, err := realtime.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID.String(), got.ID.String())
	assert.Equal(t, realtime.KindDishStatusChanged, got.Kind)
	assert.Equal(t, "node-a", got.Origin)

	p, ok := got.Payload.(realtime.DishStatusChanged)
	require.True(t, ok)
	assert.Equal(t, dish.StatusPaid, p.Status)

	_, err = realtime.Decode([]byte(`{"kind":"dish-eaten","payload":{}}`))
	assert.Error(t, err)
}

func TestHubFanOutPerRoom(t *testing.T) {
	h := newHub(t)
	a, b, other := &recorder{}, &recorder{}, &recorder{}

	for _, sub := range []struct {
		table string
		rec   *recorder
	}{{"t1", a}, {"t1", b}, {"t2", other}} {
		_, err := h.Subscribe(sub.table, sub.rec.mux())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, h.Subscribers("t1"))

	require.NoError(t, h.Publish(context.Background(), "t1", realtime.NewEvent("t1", realtime.FullRefresh{})))

	require.Eventually(t, func() bool { return a.count(realtime.KindFullRefresh) == 1 && b.count(realtime.KindFullRefresh) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Empty(t, other.kinds())
}

func TestHubOverflowCoalescesToFullRefresh(t *testing.T) {
	h := newHub(t)

	release := make(chan struct{})
	rec := &recorder{}
	mux := rec.mux()
	var once sync.Once
	mux.OnAny(func(context.Context, realtime.Event) {
		once.Do(func() { <-release })
	})

	sub, err := h.Subscribe("t1", mux, realtime.WithBuffer(2))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Publish(context.Background(), "t1", realtime.NewEvent("t1", realtime.SummaryUpdate{})))
	}
	close(release)

	require.Eventually(t, func() bool { return rec.count(realtime.KindFullRefresh) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Positive(t, sub.Overflows())
	assert.Less(t, len(rec.kinds()), 10, "overflowed events are dropped, not queued")
}

func TestHubPresence(t *testing.T) {
	h := newHub(t)
	watcher := &recorder{}
	_, err := h.Subscribe("t1", watcher.mux())
	require.NoError(t, err)

	phone, err := h.Subscribe("t1", nil, realtime.WithPresence("ana", "Ana"))
	require.NoError(t, err)
	tablet, err := h.Subscribe("t1", nil, realtime.WithPresence("ana", "Ana"))
	require.NoError(t, err)
	beto, err := h.Subscribe("t1", nil, realtime.WithPresence("beto", ""))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return watcher.count(realtime.KindUserJoined) == 2 }, time.Second, 5*time.Millisecond)

	users := h.Presence("t1")
	require.Len(t, users, 2)
	assert.Equal(t, "ana", users[0].ParticipantKey)
	assert.Equal(t, "Ana", users[0].DisplayName)
	assert.False(t, users[0].JoinedAt.IsZero())

	phone.Unsubscribe()
	assert.Len(t, h.Presence("t1"), 2, "ana is still on the tablet")

	tablet.Unsubscribe()
	beto.Unsubscribe()
	beto.Unsubscribe()

	require.Eventually(t, func() bool { return watcher.count(realtime.KindUserLeft) == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.Presence("t1"))
	assert.Equal(t, 1, h.Subscribers("t1"))
}

type fakeBridge struct {
	mu   sync.Mutex
	sent []realtime.Event
}

func (b *fakeBridge) Send(_ context.Context, ev realtime.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, ev)
	return nil
}

func TestHubBridgeEchoSuppression(t *testing.T) {
	bridge := &fakeBridge{}
	a := newHub(t, realtime.WithOrigin("node-a"), realtime.WithBridge(bridge))
	b := newHub(t, realtime.WithOrigin("node-b"))

	onA, onB := &recorder{}, &recorder{}
	_, err := a.Subscribe("t1", onA.mux())
	require.NoError(t, err)
	_, err = b.Subscribe("t1", onB.mux())
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), "t1", realtime.NewEvent("t1", realtime.FullRefresh{})))

	bridge.mu.Lock()
	require.Len(t, bridge.sent, 1)
	forwarded := bridge.sent[0]
	bridge.mu.Unlock()
	assert.Equal(t, "node-a", forwarded.Origin)

	a.Receive(forwarded)
	b.Receive(forwarded)

	require.Eventually(t, func() bool { return onB.count(realtime.KindFullRefresh) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, onA.count(realtime.KindFullRefresh), "own events are not delivered twice")

	require.NoError(t, b.Publish(context.Background(), "t1", forwarded))
	bridge.mu.Lock()
	assert.Len(t, bridge.sent, 1, "foreign events are not forwarded again")
	bridge.mu.Unlock()
}

func TestHubClosed(t *testing.T) {
	h := realtime.NewHub(realtime.WithLogger(quietLogger()))
	sub, err := h.Subscribe("t1", nil)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	sub.Unsubscribe()

	_, err = h.Subscribe("t1", nil)
	assert.ErrorIs(t, err, realtime.ErrClosed)
	assert.ErrorIs(t, h.Publish(context.Background(), "t1", realtime.NewEvent("t1", realtime.FullRefresh{})), realtime.ErrClosed)
}

func TestEventCarriesMoney(t *testing.T) {
	ev := realtime.NewEvent("t1", realtime.DishPaid{RemainingAmount: types.MXN(30_00)})
	data, err := realtime.Encode(ev)
	require.NoError(t, err)

	got, err := realtime.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, types.MXN(30_00), got.Payload.(realtime.DishPaid).RemainingAmount)
}
