package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/logging"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected    = "connected"
	MsgTypeNotification = "notification"
	MsgTypePong         = "pong"
	MsgTypeError        = "error"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocketHandler streams document notifications of the signed-in user.
type WebSocketHandler struct {
	events   Subscriber
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new notification handler. allowOrigin may be
// nil, in which case only same-origin requests are accepted.
func NewWebSocketHandler(events Subscriber, allowOrigin func(r *http.Request) bool) *WebSocketHandler {
	return &WebSocketHandler{
		events: events,
		upgrader: websocket.Upgrader{
			CheckOrigin:     allowOrigin,
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleWebSocket upgrades the connection and forwards notifications until
// the client goes away.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := logging.FromEcho(c).With(zap.String("user", uid))
	log.Info("websocket client connected")

	ch := wsh.events.Subscribe(uid)
	defer wsh.events.Unsubscribe(ch)

	// The reader owns the read side. Pings from the client are answered
	// through the outgoing queue so that only this goroutine writes.
	pongs := make(chan struct{}, 1)
	closed := make(chan struct{})
	go wsh.readLoop(ws, pongs, closed, log)

	if err := wsh.send(ws, WSMessage{Type: MsgTypeConnected}); err != nil {
		return nil
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			log.Info("websocket client disconnected")
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-pongs:
			if err := wsh.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := events.MarshalEvent(ev)
			if err != nil {
				continue
			}
			if err := wsh.send(ws, WSMessage{Type: MsgTypeNotification, Payload: data}); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return nil
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, pongs chan<- struct{}, closed chan<- struct{}, log *zap.Logger) {
	defer close(closed)

	ws.SetReadLimit(4 * 1024)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket connection error", zap.Error(err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		if msg.Type == MsgTypePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(msg)
}
