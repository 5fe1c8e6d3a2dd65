package real

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/opd-ai/toxnet/interfaces"
	"github.com/sirupsen/logrus"
)

const (
	// WebSocketPath is the HTTP path WebSocketTransport dials and serves.
	WebSocketPath = "/toxnet"

	// peerQueryParam carries the dialing node's own id.
	peerQueryParam = "peer"
)

// ErrTransportClosed is returned by operations on a closed WebSocketTransport.
var ErrTransportClosed = errors.New("transport closed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// WebSocketTransport implements interfaces.INetworkTransport with one binary
// WebSocket connection per friend. Friend ids are the ids the nodes announce
// for themselves when dialing.
type WebSocketTransport struct {
	selfID    uint32
	timeout   time.Duration
	readLimit int64
	dialer    *websocket.Dialer

	mu      sync.RWMutex
	conns   map[uint32]*wsConn
	handler interfaces.ReceiveHandler
	closed  bool
}

// NewWebSocketTransport creates a transport that announces itself as selfID.
// timeout bounds dials and writes. A friend sending a frame larger than
// maxPacketSize bytes is disconnected; zero or less disables the limit.
func NewWebSocketTransport(selfID uint32, timeout time.Duration, maxPacketSize int) *WebSocketTransport {
	return &WebSocketTransport{
		selfID:    selfID,
		timeout:   timeout,
		readLimit: int64(max(maxPacketSize, 0)),
		dialer:    &websocket.Dialer{HandshakeTimeout: timeout},
		conns:     make(map[uint32]*wsConn),
	}
}

// OnReceive implements interfaces.INetworkTransport.
func (w *WebSocketTransport) OnReceive(handler interfaces.ReceiveHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// RegisterFriend implements interfaces.INetworkTransport by dialing addr.
func (w *WebSocketTransport) RegisterFriend(friendID uint32, addr net.Addr) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     addr.String(),
		Path:     WebSocketPath,
		RawQuery: url.Values{peerQueryParam: {strconv.FormatUint(uint64(w.selfID), 10)}}.Encode(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	conn, _, err := w.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to friend %d at %s: %w", friendID, addr, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "WebSocketTransport.RegisterFriend",
		"friend_id": friendID,
		"url":       u.String(),
	}).Info("Connected to friend")

	return w.attach(friendID, conn)
}

// Handler returns the HTTP handler accepting friend connections. Mount it on
// WebSocketPath.
func (w *WebSocketTransport) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.URL.Query().Get(peerQueryParam), 10, 32)
		if err != nil {
			http.Error(rw, "missing or invalid peer id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		logrus.WithFields(logrus.Fields{
			"function":  "WebSocketTransport.Handler",
			"friend_id": id,
			"remote":    r.RemoteAddr,
		}).Info("Accepted friend connection")

		if err := w.attach(uint32(id), conn); err != nil {
			_ = conn.Close()
		}
	})
}

// attach takes over conn as the link to friendID, replacing an older link.
func (w *WebSocketTransport) attach(friendID uint32, conn *websocket.Conn) error {
	if w.readLimit > 0 {
		conn.SetReadLimit(w.readLimit)
	}
	c := &wsConn{conn: conn}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrTransportClosed
	}
	old := w.conns[friendID]
	w.conns[friendID] = c
	w.mu.Unlock()

	if old != nil {
		_ = old.conn.Close()
	}

	go w.readLoop(friendID, c)
	return nil
}

func (w *WebSocketTransport) readLoop(friendID uint32, c *wsConn) {
	defer w.detach(friendID, c)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "WebSocketTransport.readLoop",
				"friend_id": friendID,
				"error":     err.Error(),
			}).Debug("Friend connection closed")
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		w.mu.RLock()
		handler := w.handler
		w.mu.RUnlock()

		if handler != nil {
			handler(friendID, data)
		}
	}
}

func (w *WebSocketTransport) detach(friendID uint32, c *wsConn) {
	w.mu.Lock()
	if w.conns[friendID] == c {
		delete(w.conns, friendID)
	}
	w.mu.Unlock()
	_ = c.conn.Close()
}

// SendToFriend implements interfaces.INetworkTransport.
func (w *WebSocketTransport) SendToFriend(friendID uint32, packet []byte) error {
	w.mu.RLock()
	c, ok := w.conns[friendID]
	closed := w.closed
	w.mu.RUnlock()

	if closed {
		return ErrTransportClosed
	}
	if !ok {
		return fmt.Errorf("%w: %d", interfaces.ErrFriendNotConnected, friendID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
		return fmt.Errorf("write to friend %d: %w", friendID, err)
	}
	return nil
}

// Connected reports whether friendID has an open connection.
func (w *WebSocketTransport) Connected(friendID uint32) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.conns[friendID]
	return ok
}

// IsConnected implements interfaces.INetworkTransport. It reports whether at
// least one friend connection is open.
func (w *WebSocketTransport) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.closed && len(w.conns) > 0
}

// Close implements interfaces.INetworkTransport. Every connection is closed;
// the failures are returned together.
func (w *WebSocketTransport) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conns := w.conns
	w.conns = make(map[uint32]*wsConn)
	w.mu.Unlock()

	var errs error
	for id, c := range conns {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(w.timeout))
		c.writeMu.Unlock()

		if err := c.conn.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close friend %d: %w", id, err))
		}
	}
	return errs
}
