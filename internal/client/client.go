// Package client is the drawing side's connection to the judging server.
package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/transport"
	"github.com/park285/ai-pictionary/pkg/wire"
)

// Handler consumes server messages; *round.Controller satisfies it.
type Handler interface {
	HandleServer(m wire.Message)
	Disconnected(err error)
}

type Client struct {
	conn     transport.Conn
	username string
}

// Dial connects and sends the handshake. url picks the framing, see transport.Dial.
func Dial(ctx context.Context, url, username string, maxFrame int) (*Client, error) {
	conn, err := transport.Dial(ctx, url, maxFrame)
	if err != nil {
		return nil, err
	}
	c := New(conn, username)
	if err := c.Send(ctx, wire.Handshake(username)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	obslog.L().Info("client_connected", zap.String("server", conn.RemoteAddr()), zap.String("username", username))
	return c, nil
}

// New wraps an established connection without sending a handshake.
func New(conn transport.Conn, username string) *Client {
	return &Client{conn: conn, username: username}
}

func (c *Client) Send(ctx context.Context, m wire.Message) error {
	return c.conn.WriteFrame(ctx, wire.Encode(m))
}

// Run reads until the connection fails or ctx ends, delivering every frame to h.
// h.Disconnected is called exactly once on the way out.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				h.Disconnected(nil)
				return nil
			}
			obslog.L().Info("client_disconnected", zap.Error(err))
			h.Disconnected(err)
			return err
		}
		h.HandleServer(wire.ParseServer(frame))
	}
}

func (c *Client) Close() error { return c.conn.Close() }
