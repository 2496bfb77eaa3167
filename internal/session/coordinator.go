// Package session runs the judging side of one drawing connection.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/catalog"
	"github.com/park285/ai-pictionary/internal/events"
	"github.com/park285/ai-pictionary/internal/judge"
	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/stats"
	"github.com/park285/ai-pictionary/internal/transport"
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/pkg/wire"
)

// AnonymousUser replaces an empty handshake.
const AnonymousUser = "Unknown"

// Submitter is the judge side of the coordinator; *judge.Dispatcher satisfies it.
type Submitter interface {
	Submit(job judge.Job) error
}

type Deps struct {
	Stats    stats.Store
	Judge    Submitter
	Selector catalog.Selector
	Events   events.Publisher
	Catalog  *catalog.Catalog // optional; adds the target's category to logs

	WriteTimeout time.Duration // per frame; 0 = none
	StoreTimeout time.Duration // per stats call; 0 = 5s
}

type Coordinator struct {
	deps   Deps
	active atomic.Int64
}

func New(deps Deps) *Coordinator {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	return &Coordinator{deps: deps}
}

// Active is the number of connections currently being served.
func (c *Coordinator) Active() int64 { return c.active.Load() }

// Serve owns conn until the peer disconnects or ctx ends, then closes it.
// Judgements still in flight finish in the background and their results are
// dropped once the connection is gone.
func (c *Coordinator) Serve(ctx context.Context, conn transport.Conn) error {
	c.active.Add(1)
	defer c.active.Add(-1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	s := &session{id: uuid.NewString(), conn: conn, deps: &c.deps, ctx: ctx}
	log := obslog.L().With(zap.String("session", s.id), zap.String("remote", conn.RemoteAddr()))

	first, err := conn.ReadFrame(ctx)
	if err != nil {
		log.Info("session_closed_before_handshake", zap.Error(err))
		return err
	}
	s.username = strings.TrimSpace(first)
	if s.username == "" {
		s.username = AnonymousUser
	}
	s.log = log.With(zap.String("username", s.username))
	s.log.Info("session_handshake")

	if err := s.sendStats(); err != nil {
		return err
	}
	if err := s.startGame(); err != nil {
		return err
	}

	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			s.log.Info("session_closed", zap.Error(err))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		msg := wire.ParseClient(frame)
		switch msg.Kind {
		case wire.KindNewGame:
			err = s.startGame()
		case wire.KindGameEnd:
			err = s.endGame(msg.Won)
		case wire.KindDrawing:
			err = s.submitDrawing(msg.Image)
		default:
			s.log.Warn("session_unknown_frame", zap.String("frame", clip(msg.Text, 64)))
		}
		if err != nil {
			s.log.Info("session_closed", zap.Error(err))
			return err
		}
	}
}

// session is the per-connection state. mu guards the game fields, which the
// read loop and judgement callbacks both touch.
type session struct {
	id       string
	username string
	conn     transport.Conn
	deps     *Deps
	ctx      context.Context
	log      *zap.Logger

	mu      sync.Mutex
	target  string
	gameID  string
	gameWon bool
	judging bool
	rounds  int
}

type snapshot struct {
	target  string
	gameID  string
	gameWon bool
	rounds  int
}

func (s *session) state() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{target: s.target, gameID: s.gameID, gameWon: s.gameWon, rounds: s.rounds}
}

func (s *session) startGame() error {
	target := s.deps.Selector.Next()
	s.mu.Lock()
	s.target = target
	s.gameID = uuid.NewString()
	s.gameWon = false
	s.rounds = 0
	// a judgement still running belongs to the old game; judged drops it
	abandoned := s.judging
	s.judging = false
	gameID := s.gameID
	s.mu.Unlock()

	fields := []zap.Field{zap.String("game_id", gameID), zap.String("target", target), zap.Bool("abandoned_judgement", abandoned)}
	if s.deps.Catalog != nil {
		fields = append(fields, zap.String("category", s.deps.Catalog.Category(target)))
	}
	s.log.Info("session_new_game", fields...)
	return s.send(wire.Prompt(catalog.Prompt(target)))
}

func (s *session) endGame(won bool) error {
	st := s.state()
	if won && !st.gameWon {
		s.log.Warn("session_gameend_unconfirmed_win", zap.String("game_id", st.gameID))
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.deps.StoreTimeout)
	err := s.deps.Stats.RecordGame(ctx, s.username, won)
	cancel()
	if err != nil {
		s.log.Error("stats_record_error", zap.String("game_id", st.gameID), zap.Error(err))
	} else {
		s.log.Info("stats_record", zap.String("game_id", st.gameID), zap.Bool("won", won))
	}

	ev := events.GameEnded{
		GameID: st.gameID, Username: s.username, Target: st.target,
		Won: won, Rounds: st.rounds, EndedAt: time.Now().UTC(),
	}
	if err := s.deps.Events.PublishGameEnded(s.ctx, ev); err != nil {
		s.log.Warn("event_publish_error", zap.String("game_id", st.gameID), zap.Error(err))
	}
	return s.sendStats()
}

func (s *session) submitDrawing(image string) error {
	s.mu.Lock()
	if s.judging {
		s.mu.Unlock()
		s.log.Warn("session_drawing_while_judging")
		return nil
	}
	s.judging = true
	target, gameID := s.target, s.gameID
	s.mu.Unlock()

	job := judge.Job{
		SessionID: s.id,
		GameID:    gameID,
		Image:     image,
		Target:    target,
		Done:      func(o judge.Outcome) { s.judged(gameID, o) },
	}
	err := s.deps.Judge.Submit(job)
	if err == nil {
		return nil
	}

	s.log.Warn("judge_submit_rejected", zap.Error(err))
	v := judge.Busy()
	if !errors.Is(err, judge.ErrQueueFull) {
		v = verdict.Unknown(judge.CommentFailure)
	}
	s.mu.Lock()
	s.judging = false
	won := s.gameWon
	s.mu.Unlock()
	return s.send(wire.Result(v.JSON(), won))
}

// judged runs on a judge worker. Results for a replaced game are dropped;
// startGame already released their gate.
func (s *session) judged(gameID string, o judge.Outcome) {
	s.mu.Lock()
	if gameID != s.gameID {
		current := s.gameID
		s.mu.Unlock()
		s.log.Info("judge_result_stale", zap.String("game_id", gameID), zap.String("current_game_id", current))
		return
	}
	s.judging = false
	s.gameWon = s.gameWon || o.Won
	s.rounds++
	won := s.gameWon
	s.mu.Unlock()

	if err := s.send(wire.Result(o.Verdict.JSON(), won)); err != nil {
		s.log.Info("result_send_error", zap.Error(err))
	}
}

func (s *session) sendStats() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.deps.StoreTimeout)
	st, err := s.deps.Stats.GetStats(ctx, s.username)
	cancel()
	if err != nil {
		s.log.Error("stats_read_error", zap.Error(err))
		st = stats.Stats{Username: s.username}
	}
	return s.send(wire.StatsMessage(st.TotalGames, st.TotalScore))
}

// send writes one frame; a failed write closes the connection so the read
// loop ends too.
func (s *session) send(m wire.Message) error {
	ctx := s.ctx
	if s.deps.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.WriteTimeout)
		defer cancel()
	}
	if err := s.conn.WriteFrame(ctx, wire.Encode(m)); err != nil {
		_ = s.conn.Close()
		return err
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
