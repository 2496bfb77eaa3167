package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// lineConn frames with '\n'. A trailing '\r' is dropped on read.
type lineConn struct {
	conn     net.Conn
	r        *bufio.Reader
	maxFrame int

	writeMu sync.Mutex
	closeMu sync.Once
}

// NewLineConn wraps an established stream connection.
func NewLineConn(c net.Conn, maxFrame int) Conn {
	return &lineConn{conn: c, r: bufio.NewReaderSize(c, 64<<10), maxFrame: frameLimit(maxFrame)}
}

func DialTCP(ctx context.Context, addr string, maxFrame int) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewLineConn(c, maxFrame), nil
}

func (c *lineConn) ReadFrame(ctx context.Context) (string, error) {
	stop := c.watch(ctx, c.conn.SetReadDeadline)
	defer stop()

	var buf []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		if len(buf)+len(chunk) > c.maxFrame+2 {
			return "", ErrFrameTooLarge
		}
		buf = append(buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// last line without terminator
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return trimEOL(buf), nil
			}
			return "", err
		}
		line := trimEOL(buf)
		if len(line) > c.maxFrame {
			return "", ErrFrameTooLarge
		}
		return line, nil
	}
}

func (c *lineConn) WriteFrame(ctx context.Context, frame string) error {
	if strings.ContainsAny(frame, "\r\n") {
		return fmt.Errorf("transport: frame contains line break")
	}
	if len(frame) > c.maxFrame {
		return ErrFrameTooLarge
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := c.watch(ctx, c.conn.SetWriteDeadline)
	defer stop()
	if _, err := io.WriteString(c.conn, frame+"\n"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *lineConn) Close() error {
	err := ErrClosed
	c.closeMu.Do(func() { err = c.conn.Close() })
	return err
}

func (c *lineConn) RemoteAddr() string {
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// watch maps ctx cancellation and deadline onto the socket deadline.
func (c *lineConn) watch(ctx context.Context, set func(time.Time) error) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = set(dl)
	} else {
		_ = set(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { _ = set(time.Now()) })
	return func() { stop() }
}

func trimEOL(b []byte) string {
	s := string(b)
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
