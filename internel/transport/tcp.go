package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	. "lansync/internel/log"
)

const (
	readBufferSize = 32 * 1024
	sendQueueDepth = 1024
)

// TCP adapts a net.Conn to the transport contract. It is built either as a
// dialer (client side) or around an already accepted connection (server
// side).
type TCP struct {
	addr    string
	handler Handler

	mu     sync.Mutex
	conn   net.Conn
	sendCh chan []byte
	closed bool
	down   sync.Once
}

// NewDialer builds a transport that dials addr on Connect.
func NewDialer(addr string, h Handler) *TCP {
	return &TCP{
		addr:    addr,
		handler: h,
		sendCh:  make(chan []byte, sendQueueDepth),
	}
}

// NewAccepted wraps an accepted connection. Connect only starts the pump
// loops and fires OnConnected.
func NewAccepted(conn net.Conn, h Handler) *TCP {
	return &TCP{
		conn:    conn,
		handler: h,
		sendCh:  make(chan []byte, sendQueueDepth),
	}
}

func (t *TCP) Connect() {
	go func() {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		if conn == nil {
			c, err := net.Dial("tcp", t.addr)
			if err != nil {
				Log.Errorln("dial error", err)
				t.disconnected()
				return
			}
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				_ = c.Close()
				return
			}
			t.conn = c
			t.mu.Unlock()
			conn = c
		}

		go t.writeLoop(conn)
		t.handler.OnConnected()
		t.readLoop(conn)
	}()
}

func (t *TCP) Send(b []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	t.mu.Unlock()
	t.sendCh <- b
	return nil
}

func (t *TCP) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	conn := t.conn
	close(t.sendCh)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	t.disconnected()
}

func (t *TCP) readLoop(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.handler.OnBytesReceived(chunk)
		}
		if err != nil {
			t.disconnected()
			return
		}
	}
}

func (t *TCP) writeLoop(conn net.Conn) {
	for b := range t.sendCh {
		if _, err := conn.Write(b); err != nil {
			Log.Errorln("write error", err)
			t.disconnected()
			return
		}
	}
}

func (t *TCP) disconnected() {
	t.down.Do(func() {
		t.handler.OnDisconnected()
	})
}
