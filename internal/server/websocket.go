package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// MaxFragmentSize bounds a single WebSocket message, text or binary.
const MaxFragmentSize = 4 << 20

// BinaryMessage is the ReadMessage type of an audio fragment.
const BinaryMessage = websocket.BinaryMessage

// Keepalive timing. A recorder that answers no ping within PongWait is
// considered gone and its session is released.
const (
	PongWait     = 60 * time.Second
	PingInterval = PongWait * 9 / 10
	writeWait    = 10 * time.Second
)

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
}

// Ping sends a keepalive ping. It is safe to call concurrently with WriteJSON.
func Ping(conn WebSocketConn) error {
	c, ok := conn.(*websocket.Conn)
	if !ok {
		return nil
	}
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 16 << 10,
	CheckOrigin:     checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()

	// Exact localhost matches
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	// Same-origin check (compare with request host)
	requestHost := r.Host
	// Strip port from request host for comparison
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	// Check private IP ranges using net.IP
	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. Reads fail once
// no pong arrived within PongWait.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(MaxFragmentSize)
	extend := func() error { return conn.SetReadDeadline(time.Now().Add(PongWait)) }
	if err := extend(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	conn.SetPongHandler(func(string) error { return extend() })
	return conn, nil
}
