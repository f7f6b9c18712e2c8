package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

const (
	pingInterval = 30 * time.Second
	readLimit    = 64 << 10
)

// WebSocketTransport connects to a WebSocket push endpoint.
type WebSocketTransport struct {
	endpoint string
	client   *http.Client
}

func NewWebSocketTransport(endpoint string, client *http.Client) *WebSocketTransport {
	return &WebSocketTransport{endpoint: endpoint, client: client}
}

func (t *WebSocketTransport) Open(ctx context.Context, sessionID string) (Conn, error) {
	u, err := withSession(t.endpoint, sessionID)
	if err != nil {
		return nil, err
	}

	conn, _, err := ws.Dial(ctx, u, &ws.DialOptions{HTTPClient: t.client})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	pingCtx, cancel := context.WithCancel(ctx)
	c := &wsConn{conn: conn, cancel: cancel}
	go c.pingPump(pingCtx)
	return c, nil
}

type wsConn struct {
	conn   *ws.Conn
	cancel context.CancelFunc
}

// Next reads the next text message. Binary frames are skipped.
func (c *wsConn) Next(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == ws.MessageText {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	c.cancel()
	return c.conn.Close(ws.StatusNormalClosure, "")
}

// pingPump sends periodic pings to detect stale connections. A failed
// ping closes the connection, which unblocks Next.
func (c *wsConn) pingPump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				c.conn.CloseNow()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
