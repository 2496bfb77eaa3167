// Package transport carries protocol frames over a persistent connection.
// Frames are opaque single-line strings; pkg/wire gives them meaning.
package transport

import (
	"context"
	"errors"
	"strings"
)

// DefaultMaxFrame bounds one frame. Base64 PNG drawings are the largest frames.
const DefaultMaxFrame = 8 << 20

var (
	ErrFrameTooLarge = errors.New("transport: frame too large")
	ErrClosed        = errors.New("transport: connection closed")
)

// Conn is one bidirectional frame stream. WriteFrame is safe for concurrent
// use; ReadFrame must be called from a single goroutine.
type Conn interface {
	ReadFrame(ctx context.Context) (string, error)
	WriteFrame(ctx context.Context, frame string) error
	Close() error
	RemoteAddr() string
}

// Dial connects by URL scheme: ws:// and wss:// use WebSocket framing,
// anything else (tcp://host:port or bare host:port) uses line framing.
func Dial(ctx context.Context, url string, maxFrame int) (Conn, error) {
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return DialWS(ctx, url, maxFrame)
	default:
		return DialTCP(ctx, strings.TrimPrefix(url, "tcp://"), maxFrame)
	}
}

func frameLimit(n int) int {
	if n <= 0 {
		return DefaultMaxFrame
	}
	return n
}
