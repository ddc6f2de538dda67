package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/backend/internal/events"
)

func dialNotifications(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ui/api/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestWebSocketNotifications(t *testing.T) {
	ts, token := signedIn(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	ws, _, err := dialNotifications(t, srv, token)
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, MsgTypeConnected, readMessage(t, ws).Type)

	require.Eventually(t, func() bool { return ts.events.Count() == 1 }, time.Second, 10*time.Millisecond)

	ts.events.Publish(events.Event{Type: events.EventDocAdded, UserID: "someone-else", DocumentID: "hidden"})
	ts.events.Publish(events.Event{Type: events.EventDocAdded, UserID: "reader@example.com", DocumentID: "d1", Name: "Books"})

	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeNotification, msg.Type)
	var ev events.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, "d1", ev.DocumentID)
	assert.Equal(t, "Books", ev.Name)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, ws).Type)

	ws.Close()
	assert.Eventually(t, func() bool { return ts.events.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRequiresAuth(t *testing.T) {
	ts, _ := signedIn(t)
	srv := httptest.NewServer(ts.e)
	defer srv.Close()

	_, resp, err := dialNotifications(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
