package events

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"
)

// Transport carries events to one connected client.
type Transport interface {
	Send(ev Event) error
	Close() error
}

// SSETransport writes text/event-stream frames: "event:<kind>" and
// "data:<json>" lines followed by a blank line.
type SSETransport struct {
	w       io.Writer
	flusher http.Flusher
}

func NewSSETransport(w http.ResponseWriter) *SSETransport {
	f, _ := w.(http.Flusher)
	return &SSETransport{w: w, flusher: f}
}

// PrepareSSE sets the headers for a long-lived event stream.
func PrepareSSE(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (t *SSETransport) Send(ev Event) error {
	err := sse.Encode(t.w, sse.Event{
		Event: string(ev.Kind),
		Data:  ev.Payload(),
	})
	if err != nil {
		return err
	}
	if t.flusher != nil {
		t.flusher.Flush()
	}
	return nil
}

func (t *SSETransport) Close() error { return nil }

const wsWriteWait = 10 * time.Second

// wsFrame is the JSON message sent over a websocket.
type wsFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// WSTransport sends events as JSON text messages over a websocket.
type WSTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

func (t *WSTransport) Send(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteJSON(wsFrame{Event: string(ev.Kind), Data: ev.Payload()})
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}
