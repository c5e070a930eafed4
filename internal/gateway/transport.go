package gateway

import (
	"time"

	"github.com/fasthttp/websocket"
)

// Transport abstracts the frame pipe under a connection. The production
// transport is a websocket; tests drive the state machine over an in-memory
// pipe.
type Transport interface {
	// ReadMessage blocks until the next inbound frame or a transport error.
	ReadMessage() ([]byte, error)
	// WriteMessage must be safe for concurrent use.
	WriteMessage(data []byte) error
	// Close sends a close frame with the given code and tears the pipe down.
	Close(code int, reason string) error
}

const (
	writeWait        = 10 * time.Second
	maxMessageSize   = 1 << 16
	closeGracePeriod = 100 * time.Millisecond
)

type wsTransport struct {
	conn *websocket.Conn

	writeMx chan struct{}
}

func newWSTransport(conn *websocket.Conn) Transport {
	conn.SetReadLimit(maxMessageSize)

	t := &wsTransport{
		conn:    conn,
		writeMx: make(chan struct{}, 1),
	}
	t.writeMx <- struct{}{}

	return t
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()

	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	<-t.writeMx
	defer func() { t.writeMx <- struct{}{} }()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close(code int, reason string) error {
	<-t.writeMx
	defer func() { t.writeMx <- struct{}{} }()

	msg := websocket.FormatCloseMessage(code, reason)

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = t.conn.WriteMessage(websocket.CloseMessage, msg)

	// Give the peer a beat to observe the close frame.
	time.Sleep(closeGracePeriod)

	return t.conn.Close()
}
