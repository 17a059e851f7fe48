package stream

import (
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSWriter writes events as JSON text frames on a WebSocket.
type WSWriter struct {
	conn *websocket.Conn
}

// NewWSWriter wraps an upgraded connection.
func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

// WriteEvent sends one event frame.
func (s *WSWriter) WriteEvent(ev Event) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// Close sends a normal closure frame and closes the connection.
func (s *WSWriter) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "turn complete"),
		time.Now().Add(wsWriteWait))
	return s.conn.Close()
}
