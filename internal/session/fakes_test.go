package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/park285/ai-pictionary/internal/judge"
	"github.com/park285/ai-pictionary/internal/transport"
	"github.com/park285/ai-pictionary/pkg/wire"
)

// pipeConn is an in-memory transport.Conn driven by the test.
type pipeConn struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan string, 16), out: make(chan string, 64), closed: make(chan struct{})}
}

func (p *pipeConn) ReadFrame(ctx context.Context) (string, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return "", transport.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *pipeConn) WriteFrame(ctx context.Context, frame string) error {
	select {
	case <-p.closed:
		return transport.ErrClosed
	default:
	}
	select {
	case p.out <- frame:
		return nil
	case <-p.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) RemoteAddr() string { return "pipe" }

func (p *pipeConn) send(frame string) { p.in <- frame }

func (p *pipeConn) next(t *testing.T) wire.Message {
	t.Helper()
	select {
	case f := <-p.out:
		return wire.ParseServer(f)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from server")
		return wire.Message{}
	}
}

// heldJudge queues jobs until the test completes them.
type heldJudge struct {
	jobs chan judge.Job
	err  error
}

func newHeldJudge() *heldJudge { return &heldJudge{jobs: make(chan judge.Job, 16)} }

func (h *heldJudge) Submit(job judge.Job) error {
	if h.err != nil {
		return h.err
	}
	h.jobs <- job
	return nil
}

func (h *heldJudge) take(t *testing.T) judge.Job {
	t.Helper()
	select {
	case j := <-h.jobs:
		return j
	case <-time.After(2 * time.Second):
		t.Fatal("no judgement submitted")
		return judge.Job{}
	}
}
