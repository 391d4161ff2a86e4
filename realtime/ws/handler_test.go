package ws_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/realtime/ws"
)

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := realtime.Decode(data)
	require.NoError(t, err)
	return ev
}

// readUntil skips events of other kinds, such as the client's own
// user-joined.
func readUntil(t *testing.T, conn *websocket.Conn, kind realtime.Kind) realtime.Event {
	t.Helper()
	for i := 0; i < 5; i++ {
		if ev := readEvent(t, conn); ev.Kind == kind {
			return ev
		}
	}
	t.Fatalf("%s was not delivered", kind)
	return realtime.Event{}
}

func TestHandlerStreamsRoomEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := realtime.NewHub(realtime.WithLogger(logger))
	defer hub.Close()

	h := ws.NewHandler(hub, ws.WithLogger(logger))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "t1", r.URL.Query().Get("guest"), "")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?guest=ana"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, realtime.KindFullRefresh)

	require.Eventually(t, func() bool { return len(hub.Presence("t1")) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "t1", realtime.NewEvent("t1", realtime.DishPaid{})))

	ev := readUntil(t, conn, realtime.KindDishPaid)
	assert.Equal(t, "t1", ev.TableID)
}

func TestHandlerLeavesRoomOnDisconnect(t *testing.T) {
	hub := realtime.NewHub(realtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer hub.Close()

	h := ws.NewHandler(hub)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "t1", "beto", "Beto")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	readUntil(t, conn, realtime.KindFullRefresh)
	require.Equal(t, 1, hub.Subscribers("t1"))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers("t1") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, hub.Presence("t1"))
}
