package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// wsConn carries one frame per text message.
type wsConn struct {
	conn   *websocket.Conn
	remote string

	writeMu sync.Mutex
}

func DialWS(ctx context.Context, url string, maxFrame int) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(int64(frameLimit(maxFrame)))
	return &wsConn{conn: conn, remote: url}, nil
}

// AcceptWS upgrades an HTTP request. The caller owns the returned Conn.
func AcceptWS(w http.ResponseWriter, r *http.Request, maxFrame int) (Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(int64(frameLimit(maxFrame)))
	return &wsConn{conn: conn, remote: r.RemoteAddr}, nil
}

func (c *wsConn) ReadFrame(ctx context.Context) (string, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				return "", fmt.Errorf("%w: %v", ErrClosed, ce.Code)
			}
			return "", err
		}
		if typ != websocket.MessageText {
			continue
		}
		return string(data), nil
	}
}

func (c *wsConn) WriteFrame(ctx context.Context, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, []byte(frame))
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "close")
}

func (c *wsConn) RemoteAddr() string { return c.remote }
