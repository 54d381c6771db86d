package subscription

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"marketfeed/logger"
)

// Conn is the part of *websocket.Conn the manager relies on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a Conn to a websocket URL.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer returns a Dialer backed by gorilla/websocket.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return websocketDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}}
}

func (d websocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Transport is the source currently feeding a key: a live socket or the demo
// ticker. The two never coexist.
type Transport interface {
	transport()
}

type liveTransport struct {
	conn     Conn
	stopPing context.CancelFunc
}

type demoTransport struct {
	ticker *time.Ticker
}

func (*liveTransport) transport() {}
func (*demoTransport) transport() {}

// closeTransport releases t. Live sockets are sent a normal closure first so
// the venue sees an intentional disconnect.
func closeTransport(t Transport) {
	switch t := t.(type) {
	case *liveTransport:
		if t.stopPing != nil {
			t.stopPing()
		}
		closeConn(t.conn)
	case *demoTransport:
		t.ticker.Stop()
	}
}

func closeConn(conn Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// startPingLoop keeps conn alive. A nil payload sends protocol pings, otherwise
// payload is written as a text frame (OKX expects a literal "ping").
func startPingLoop(ctx context.Context, conn Conn, interval time.Duration, payload []byte, log *logger.Entry) context.CancelFunc {
	pingCtx, cancel := context.WithCancel(ctx)
	if interval <= 0 {
		return cancel
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				var err error
				if payload != nil {
					err = conn.WriteMessage(websocket.TextMessage, payload)
				} else {
					err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
				}
				if err != nil {
					log.WithError(err).Debug("failed to send websocket ping")
					return
				}
			}
		}
	}()
	return cancel
}

// waitFor sleeps for delay and reports whether ctx ended first.
func waitFor(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
