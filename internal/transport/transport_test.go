package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T, maxFrame int) (Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	c := NewLineConn(a, maxFrame)
	t.Cleanup(func() { _ = c.Close(); _ = b.Close() })
	return c, b
}

func TestLineConnReadsFrames(t *testing.T) {
	c, peer := pipe(t, 0)
	go func() { _, _ = peer.Write([]byte("alice\r\nNEWGAME\nGAMEEND:1")); _ = peer.Close() }()

	ctx := context.Background()
	for _, want := range []string{"alice", "NEWGAME", "GAMEEND:1"} {
		got, err := c.ReadFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := c.ReadFrame(ctx)
	assert.Error(t, err)
}

func TestLineConnLargeFrameWithinLimit(t *testing.T) {
	c, peer := pipe(t, 1<<20)
	big := "DRAWING:" + strings.Repeat("A", 300<<10)
	go func() { _, _ = peer.Write([]byte(big + "\n")) }()

	got, err := c.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestLineConnRejectsOversizedFrame(t *testing.T) {
	c, peer := pipe(t, 1024)
	go func() { _, _ = peer.Write([]byte(strings.Repeat("x", 100<<10) + "\n")) }()

	_, err := c.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.ErrorIs(t, c.WriteFrame(context.Background(), strings.Repeat("y", 2048)), ErrFrameTooLarge)
}

func TestLineConnReadHonoursContext(t *testing.T) {
	c, _ := pipe(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { time.Sleep(20 * time.Millisecond); cancel() }()

	_, err := c.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLineConnConcurrentWritesDoNotInterleave(t *testing.T) {
	c, peer := pipe(t, 0)
	reader := NewLineConn(peer, 0)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.WriteFrame(context.Background(), "RESULT:"+strings.Repeat("z", 4096))
		}()
	}
	for i := 0; i < n; i++ {
		got, err := reader.ReadFrame(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, len("RESULT:")+4096)
	}
	wg.Wait()
}

func TestLineConnRejectsEmbeddedNewline(t *testing.T) {
	c, _ := pipe(t, 0)
	assert.Error(t, c.WriteFrame(context.Background(), "PROMPT:a\nb"))
}

func TestTCPDialRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		srv := NewLineConn(raw, 0)
		defer srv.Close()
		f, err := srv.ReadFrame(context.Background())
		if err == nil {
			_ = srv.WriteFrame(context.Background(), "echo:"+f)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "tcp://"+ln.Addr().String(), 0)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteFrame(ctx, "bob"))
	got, err := c.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo:bob", got)
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := AcceptWS(w, r, 0)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			f, err := c.ReadFrame(r.Context())
			if err != nil {
				return
			}
			if err := c.WriteFrame(r.Context(), "echo:"+f); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), 0)
	require.NoError(t, err)

	require.NoError(t, c.WriteFrame(ctx, "DRAWING:abc"))
	got, err := c.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo:DRAWING:abc", got)
	require.NoError(t, c.Close())

	_, err = c.ReadFrame(ctx)
	assert.Error(t, err)
}
