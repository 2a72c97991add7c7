package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/events"
	"fleet-service/internal/logging"
)

func dial(t *testing.T, srv *httptest.Server) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeSendsSnapshotThenEvents(t *testing.T) {
	m := NewManager(logging.NewTest(io.Discard))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.Serve(w, r, "dev-1", map[string]string{"device_id": "dev-1"})
	}))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, first, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_id":"dev-1"}`, string(first))
	assert.Equal(t, 1, m.Count("dev-1"))

	require.NoError(t, m.Publish(context.Background(), events.Event{Kind: events.KindAlert, DeviceID: "dev-1", Revision: 7}))
	require.NoError(t, m.Publish(context.Background(), events.Event{Kind: events.KindAlert, DeviceID: "dev-2"}))

	_, body, err := conn.ReadMessage()
	require.NoError(t, err)
	var got events.Event
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, events.KindAlert, got.Kind)
	assert.Equal(t, uint64(7), got.Revision)
}

func TestRemoveConnectionOnClientClose(t *testing.T) {
	m := NewManager(logging.NewTest(io.Discard))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.Serve(w, r, "dev-1", nil)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, 1, m.Count("dev-1"))

	conn.Close()
	assert.Eventually(t, func() bool { return m.Count("dev-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
