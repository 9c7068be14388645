package detection

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
)

// DefaultHandshakeTimeout bounds the websocket dial.
const DefaultHandshakeTimeout = 5 * time.Second

// wsRequest is one frame sent to the service.
type wsRequest struct {
	RequestID   string `json:"request_id"`
	UserID      string `json:"user_id"`
	ContentType string `json:"content_type,omitempty"`
	Image       string `json:"image"`
}

// wsResponse is one frame received from the service.
type wsResponse struct {
	RequestID string `json:"request_id"`
	wireResult

	err error
}

// WSClient multiplexes detection requests over a single websocket.
// The connection is dialed lazily and redialed after a failure.
type WSClient struct {
	url    string
	dialer websocket.Dialer
	header http.Header
	log    logger.Logger

	writeMu sync.Mutex

	mu      sync.Mutex // guards conn, pending, closed
	conn    *websocket.Conn
	pending map[string]chan wsResponse
	closed  bool
}

// WSOption configures a WSClient.
type WSOption func(*WSClient)

// WithWSLogger sets the logger.
func WithWSLogger(l logger.Logger) WSOption {
	return func(c *WSClient) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHandshakeTimeout sets the dial handshake timeout.
func WithHandshakeTimeout(d time.Duration) WSOption {
	return func(c *WSClient) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// WithHeader adds headers sent on dial.
func WithHeader(h http.Header) WSOption {
	return func(c *WSClient) {
		c.header = h
	}
}

// NewWSClient creates a client for the websocket endpoint at url.
func NewWSClient(url string, opts ...WSOption) *WSClient {
	c := &WSClient{
		url:     url,
		dialer:  websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout},
		log:     logger.Nop(),
		pending: make(map[string]chan wsResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detect sends req and waits for the response carrying the same request id.
func (c *WSClient) Detect(ctx context.Context, req model.DetectionRequest) (model.DetectionResult, error) {
	if req.ID == "" {
		return model.DetectionResult{}, serviceError("detect", errors.New("request id required"))
	}
	conn, err := c.connection(ctx)
	if err != nil {
		return model.DetectionResult{}, err
	}

	ch := make(chan wsResponse, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	msg := wsRequest{
		RequestID:   req.ID,
		UserID:      req.UserID,
		ContentType: req.Image.ContentType,
		Image:       base64.StdEncoding.EncodeToString(req.Image.Data),
	}
	if err := c.write(ctx, conn, msg); err != nil {
		c.drop(conn, err)
		return model.DetectionResult{}, serviceError("send", err)
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return model.DetectionResult{}, serviceError("receive", resp.err)
		}
		if resp.Error != "" {
			return model.DetectionResult{}, serviceError("detect", &APIError{StatusCode: http.StatusOK, Message: resp.Error})
		}
		return resp.DetectionResult, nil
	case <-ctx.Done():
		return model.DetectionResult{}, serviceError("receive", ctx.Err())
	}
}

// Close closes the connection and fails all pending requests.
func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.drop(conn, ErrClosed)
	return nil
}

func (c *WSClient) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, serviceError("dial", err)
	}
	c.log.Info(ctx, "detector websocket connected", logger.String("url", c.url))
	c.conn = conn
	go c.readLoop(conn)
	return conn, nil
}

func (c *WSClient) write(ctx context.Context, conn *websocket.Conn, msg wsRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		var resp wsResponse
		if err := conn.ReadJSON(&resp); err != nil {
			c.drop(conn, fmt.Errorf("read: %w", err))
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		c.mu.Unlock()
		if !ok {
			c.log.Warn(context.Background(), "response for unknown request", logger.String("request_id", resp.RequestID))
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
}

// drop discards conn if it is still current and fails its pending requests.
func (c *WSClient) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		for id, ch := range c.pending {
			select {
			case ch <- wsResponse{RequestID: id, err: cause}:
			default:
			}
		}
	}
	c.mu.Unlock()
	_ = conn.Close()
}
