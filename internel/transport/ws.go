package transport

import (
	"regexp"
	"strings"
	"sync"

	ws "github.com/gorilla/websocket"
	"github.com/pkg/errors"

	. "lansync/internel/log"
)

// SyncPath is the websocket endpoint both peers agree on.
const SyncPath = "/sync"

// WS adapts a gorilla websocket connection to the byte-stream contract.
// Each Send travels as one binary message; the receiving side still treats
// message bodies as unaligned stream chunks and leaves framing to the codec.
type WS struct {
	addr string
	ssl  bool

	handler Handler

	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	closed bool
	down   sync.Once
}

// NewWSDialer builds a transport that dials a websocket server on Connect.
func NewWSDialer(addr string, ssl bool, h Handler) *WS {
	return &WS{
		addr:    addr,
		ssl:     ssl,
		handler: h,
		sendCh:  make(chan []byte, sendQueueDepth),
	}
}

// NewWSAccepted wraps an upgraded server-side connection.
func NewWSAccepted(conn *ws.Conn, h Handler) *WS {
	return &WS{
		conn:    conn,
		handler: h,
		sendCh:  make(chan []byte, sendQueueDepth),
	}
}

func (w *WS) Connect() {
	go func() {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		if conn == nil {
			re := regexp.MustCompile(`^(https?|wss?|tcp)://`)
			addr := re.ReplaceAllString(w.addr, "")
			var prefix string
			if w.ssl {
				prefix = "wss://"
			} else {
				prefix = "ws://"
			}
			url := strings.Join([]string{prefix, addr, SyncPath}, "")
			Log.Debugln("ws url:", url)

			c, _, err := ws.DefaultDialer.Dial(url, nil)
			if err != nil {
				Log.Errorln("ws dial error", err)
				w.disconnected()
				return
			}
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				_ = c.Close()
				return
			}
			w.conn = c
			w.mu.Unlock()
			conn = c
		}

		go w.writeLoop(conn)
		w.handler.OnConnected()
		w.readLoop(conn)
	}()
}

func (w *WS) Send(b []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("transport closed")
	}
	w.mu.Unlock()
	w.sendCh <- b
	return nil
}

func (w *WS) Disconnect() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	conn := w.conn
	close(w.sendCh)
	w.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	w.disconnected()
}

func (w *WS) readLoop(conn *ws.Conn) {
	for {
		mt, buf, err := conn.ReadMessage()
		if err != nil {
			w.disconnected()
			return
		}
		if mt != ws.BinaryMessage {
			Log.Warnln("dropping non-binary message")
			continue
		}
		w.handler.OnBytesReceived(buf)
	}
}

func (w *WS) writeLoop(conn *ws.Conn) {
	for b := range w.sendCh {
		if err := conn.WriteMessage(ws.BinaryMessage, b); err != nil {
			Log.Errorln("ws write error", err)
			w.disconnected()
			return
		}
	}
}

func (w *WS) disconnected() {
	w.down.Do(func() {
		w.handler.OnDisconnected()
	})
}
