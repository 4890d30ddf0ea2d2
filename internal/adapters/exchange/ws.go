package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/aisuite/internal/api"
	"github.com/PabloGalante/aisuite/internal/app/chatsession"
	"github.com/PabloGalante/aisuite/internal/idgen"
)

// ErrRemote wraps an error reported by the server in a WebSocket frame.
var ErrRemote = errors.New("exchange: server error")

// WSClient exchanges messages over one long-lived WebSocket. The socket is
// dialled on first use and re-dialled after any transport failure.
type WSClient struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSClient derives the socket URL from an HTTP base URL such as
// "http://localhost:8000/api".
func NewWSClient(baseURL string) *WSClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u := strings.TrimRight(baseURL, "/") + api.PathWebSocket
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &WSClient{
		url:    u,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// URL is the socket address the client dials.
func (c *WSClient) URL() string {
	return c.url
}

func (c *WSClient) Exchange(ctx context.Context, req chatsession.ExchangeRequest) (*chatsession.ExchangeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Time{})
	}
	// unblock a pending read as soon as ctx is done
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	frame := api.WSRequest{
		RequestID: idgen.NewRequestID(),
		Message:   req.Message,
	}
	if req.SessionID != "" {
		sid := req.SessionID
		frame.SessionID = &sid
	}

	if err := conn.WriteJSON(frame); err != nil {
		c.dropLocked()
		return nil, c.transportErr(ctx, "write", err)
	}

	for {
		var resp api.WSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			c.dropLocked()
			return nil, c.transportErr(ctx, "read", err)
		}
		if resp.RequestID != frame.RequestID {
			// answer to an earlier request that was abandoned
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
		}
		if resp.ChatResponse == nil {
			return nil, fmt.Errorf("%w: frame without reply", ErrMalformedResponse)
		}
		return FromChatResponse(resp.ChatResponse), nil
	}
}

// Close closes the socket if it is open.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WSClient) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn
	return conn, nil
}

func (c *WSClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *WSClient) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("websocket %s: %w", op, ctxErr)
	}
	return fmt.Errorf("websocket %s: %w", op, err)
}
