package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types written by WebSocket.
const (
	FrameEvent  = "event"
	FrameOutput = "output"
	FrameError  = "error"
)

// Frame is the JSON envelope written to a websocket connection.
type Frame struct {
	Type   string `json:"type"`
	Event  *Event `json:"event,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WebSocket writes each event as a JSON frame to a websocket connection.
type WebSocket struct {
	conn         *websocket.Conn
	connMu       sync.Mutex
	writeTimeout time.Duration
}

// NewWebSocket wraps conn. writeTimeout <= 0 disables write deadlines.
func NewWebSocket(conn *websocket.Conn, writeTimeout time.Duration) *WebSocket {
	return &WebSocket{conn: conn, writeTimeout: writeTimeout}
}

// Emit implements Emitter.
func (w *WebSocket) Emit(ctx context.Context, e Event) error {
	return w.WriteFrame(ctx, Frame{Type: FrameEvent, Event: &e})
}

// WriteFrame writes an arbitrary frame.
func (w *WebSocket) WriteFrame(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := w.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}
