// Package server accepts drawing clients over TCP and WebSocket.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/session"
	"github.com/park285/ai-pictionary/internal/transport"
)

type Config struct {
	ListenAddr string // line protocol
	WSAddr     string // HTTP: /ws and /healthz; empty disables
	MaxFrame   int
}

type Server struct {
	cfg   Config
	coord *session.Coordinator

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func New(cfg Config, coord *session.Coordinator) *Server {
	return &Server{cfg: cfg, coord: coord}
}

// ListenAndServe opens the configured listeners and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	var wsLn net.Listener
	if s.cfg.WSAddr != "" {
		wsLn, err = net.Listen("tcp", s.cfg.WSAddr)
		if err != nil {
			_ = ln.Close()
			return err
		}
	}
	return s.Serve(ctx, ln, wsLn)
}

// Serve takes ownership of the listeners; wsLn may be nil. It returns once
// ctx is done or accepting fails, and every session has ended.
func (s *Server) Serve(ctx context.Context, ln, wsLn net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var httpSrv *http.Server
	if wsLn != nil {
		httpSrv = &http.Server{Handler: s.Handler(ctx), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			obslog.L().Info("server_ws_listen", zap.String("addr", wsLn.Addr().String()))
			if err := httpSrv.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				obslog.L().Error("server_ws_error", zap.Error(err))
			}
		}()
	}

	stopped := make(chan struct{})
	context.AfterFunc(ctx, func() {
		defer close(stopped)
		_ = ln.Close()
		if httpSrv != nil {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = httpSrv.Shutdown(sctx)
		}
	})

	obslog.L().Info("server_listen", zap.String("addr", ln.Addr().String()))
	var acceptErr error
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = err
				obslog.L().Error("server_accept_error", zap.Error(err))
			}
			break
		}
		if !s.track() {
			_ = raw.Close()
			continue
		}
		go func() {
			defer s.wg.Done()
			_ = s.coord.Serve(ctx, transport.NewLineConn(raw, s.cfg.MaxFrame))
		}()
	}
	cancel()
	<-stopped
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wg.Wait()
	return acceptErr
}

// track registers a session unless shutdown has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// Handler serves /ws upgrades and /healthz. Sessions end when ctx does.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.AcceptWS(w, r, s.cfg.MaxFrame)
		if err != nil {
			obslog.L().Warn("server_ws_accept_error", zap.Error(err))
			return
		}
		if !s.track() {
			_ = conn.Close()
			return
		}
		defer s.wg.Done()
		_ = s.coord.Serve(ctx, conn)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": s.coord.Active()})
	})
	return mux
}
