// Package events announces finished games to other services.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/obslog"
)

const SubjectGameEnded = "pictionary.game.ended"

// GameEnded is published once per GAMEEND the judging side accepts.
type GameEnded struct {
	GameID   string    `json:"game_id"`
	Username string    `json:"username"`
	Target   string    `json:"target"`
	Won      bool      `json:"won"`
	Rounds   int       `json:"rounds_judged"`
	EndedAt  time.Time `json:"ended_at"`
}

type Publisher interface {
	PublishGameEnded(ctx context.Context, ev GameEnded) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishGameEnded(context.Context, GameEnded) error { return nil }
func (Nop) Close() error                                      { return nil }

// publisher is the part of *nats.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn
	subject string
}

// DialNATS connects to url. The connection reconnects on its own; publishes
// made while disconnected are buffered by the client.
func DialNATS(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("pictionary-server"),
		nats.ReconnectBufSize(5*1024*1024),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			obslog.L().Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			obslog.L().Info("nats_reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, nc: nc, subject: SubjectGameEnded}, nil
}

func (p *NATSPublisher) PublishGameEnded(ctx context.Context, ev GameEnded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.conn.Publish(p.subject, raw)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Open returns a NATS publisher when url is set, otherwise Nop.
func Open(url string) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	return DialNATS(url)
}
