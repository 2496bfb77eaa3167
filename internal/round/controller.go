// Package round drives the drawing side of a game: round deadlines, the
// single gated submission and game-end bookkeeping.
package round

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/pkg/wire"
)

var ErrDisconnected = errors.New("round: disconnected")

// Canvas supplies the current drawing as base64 PNG.
type Canvas interface {
	Snapshot() (string, error)
	Clear()
}

// Sender writes one protocol message to the judging side.
type Sender interface {
	Send(ctx context.Context, m wire.Message) error
}

type Config struct {
	FirstRound   int // ticks
	NextRound    int // ticks
	MaxRounds    int
	Tick         time.Duration
	SendTimeout  time.Duration
	Tickers      TickerFactory
	EventBacklog int
}

func DefaultConfig() Config {
	return Config{FirstRound: 60, NextRound: 15, MaxRounds: 5, Tick: time.Second, SendTimeout: 10 * time.Second}
}

type eventKind int

const (
	evServer eventKind = iota
	evSubmit
	evNewGame
	evDisconnect
)

type event struct {
	kind eventKind
	msg  wire.Message
	err  error
}

// Controller is a single-goroutine actor. Every input, including timer
// ticks, is handled on the Run goroutine, so manual and automatic submission
// can never both fire for one round.
type Controller struct {
	cfg      Config
	canvas   Canvas
	sender   Sender
	listener Listener

	events chan event

	// owned by Run
	st        State
	ticker    Ticker
	started   bool // a drawing was sent in the current game
	finalized bool // GAMEEND already sent for the current game

	viewMu sync.RWMutex
	view   State
}

func New(cfg Config, canvas Canvas, sender Sender, listener Listener) *Controller {
	def := DefaultConfig()
	if cfg.FirstRound <= 0 {
		cfg.FirstRound = def.FirstRound
	}
	if cfg.NextRound <= 0 {
		cfg.NextRound = def.NextRound
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.Tickers == nil {
		cfg.Tickers = SystemTickers()
	}
	if cfg.EventBacklog <= 0 {
		cfg.EventBacklog = 64
	}
	if listener == nil {
		listener = NopListener{}
	}
	c := &Controller{cfg: cfg, canvas: canvas, sender: sender, listener: listener, events: make(chan event, cfg.EventBacklog)}
	c.st.Phase = PhaseIdle
	c.publish()
	return c
}

// HandleServer queues a message from the judging side.
func (c *Controller) HandleServer(m wire.Message) { c.post(event{kind: evServer, msg: m}) }

// Submit is the manual submission trigger.
func (c *Controller) Submit() { c.post(event{kind: evSubmit}) }

// RequestNewGame finalizes the current game if needed and asks for a new target.
func (c *Controller) RequestNewGame() { c.post(event{kind: evNewGame}) }

// Disconnected stops the round and disables all controls.
func (c *Controller) Disconnected(err error) { c.post(event{kind: evDisconnect, err: err}) }

func (c *Controller) post(ev event) { c.events <- ev }

// State returns the state as of the last handled event.
func (c *Controller) State() State {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// Run handles events until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stopTimer()
	for {
		var tickC <-chan time.Time
		if c.ticker != nil {
			tickC = c.ticker.C()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
			c.onTick(ctx)
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
		c.publish()
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	if c.st.Phase == PhaseDisconnected {
		return
	}
	switch ev.kind {
	case evServer:
		switch ev.msg.Kind {
		case wire.KindPrompt:
			c.onPrompt(ctx, ev.msg.Text)
		case wire.KindResult:
			c.onResult(ctx, ev.msg)
		case wire.KindStats:
			c.st.Stats = ev.msg.Stats
			c.listener.OnStats(ev.msg.Stats)
		default:
			obslog.L().Warn("round_unknown_frame", zap.String("frame", ev.msg.Text))
		}
	case evSubmit:
		c.submit(ctx, false)
	case evNewGame:
		c.onNewGame(ctx)
	case evDisconnect:
		c.stopTimer()
		c.st.SubmitEnabled = false
		c.setPhase(PhaseDisconnected)
		if ev.err != nil {
			c.listener.OnError(fmt.Errorf("%w: %v", ErrDisconnected, ev.err))
		}
	}
}

func (c *Controller) onTick(ctx context.Context) {
	if c.st.Phase != PhaseRoundActive {
		c.stopTimer()
		return
	}
	c.st.Remaining--
	c.listener.OnCountdown(c.st.Remaining)
	if c.st.Remaining <= 0 {
		c.submit(ctx, true)
	}
}

// submit is the one entry point for manual and deadline submission.
func (c *Controller) submit(ctx context.Context, auto bool) {
	if !c.st.SubmitEnabled {
		return
	}
	c.st.SubmitEnabled = false
	c.stopTimer()

	img, err := c.canvas.Snapshot()
	if err != nil {
		c.st.SubmitEnabled = true
		if c.st.Remaining > 0 {
			c.startTimer()
		}
		c.listener.OnError(fmt.Errorf("snapshot canvas: %w", err))
		return
	}
	c.started = true
	c.setPhase(PhaseJudging)
	obslog.L().Info("round_submit", zap.Int("round", c.st.RoundIndex), zap.Bool("auto", auto))
	c.send(ctx, wire.Drawing(img))
}

func (c *Controller) onResult(ctx context.Context, m wire.Message) {
	v := verdict.Parse(m.Verdict)
	c.st.LastVerdict = v
	if c.st.Phase != PhaseJudging {
		// a judgement for an abandoned game; show it but keep the round as is
		c.listener.OnVerdict(v, c.st.GameWon)
		return
	}
	c.st.GameWon = m.Won
	c.listener.OnVerdict(v, m.Won)

	switch {
	case m.Won:
		c.setPhase(PhaseWonPaused)
	case c.st.RoundIndex < c.cfg.MaxRounds-1:
		c.beginRound(c.st.RoundIndex + 1)
	default:
		c.setPhase(PhaseExhausted)
		c.finalize(ctx, false)
	}
}

func (c *Controller) onPrompt(ctx context.Context, prompt string) {
	c.stopTimer()
	if c.started && !c.finalized {
		c.finalize(ctx, c.st.GameWon)
	}
	c.started, c.finalized = false, false
	c.st.Prompt = prompt
	c.st.GameWon = false
	c.st.LastVerdict = verdict.Verdict{}
	c.canvas.Clear()
	c.listener.OnPrompt(prompt)
	c.beginRound(0)
}

func (c *Controller) onNewGame(ctx context.Context) {
	c.stopTimer()
	c.st.SubmitEnabled = false
	if c.started && !c.finalized {
		c.finalize(ctx, c.st.GameWon)
	}
	c.setPhase(PhaseIdle)
	c.send(ctx, wire.NewGame())
}

func (c *Controller) finalize(ctx context.Context, won bool) {
	c.finalized = true
	obslog.L().Info("round_game_end", zap.Bool("won", won), zap.Int("round", c.st.RoundIndex))
	c.send(ctx, wire.GameEnd(won))
}

func (c *Controller) beginRound(index int) {
	c.st.RoundIndex = index
	c.st.IsFirstRound = index == 0
	c.st.Remaining = c.deadline(index)
	c.st.SubmitEnabled = true
	c.setPhase(PhaseRoundActive)
	c.listener.OnRound(index, c.st.Remaining)
	c.startTimer()
}

func (c *Controller) deadline(index int) int {
	if index == 0 {
		return c.cfg.FirstRound
	}
	return c.cfg.NextRound
}

func (c *Controller) setPhase(p Phase) {
	if c.st.Phase == p {
		return
	}
	c.st.Phase = p
	c.listener.OnPhase(p)
}

func (c *Controller) startTimer() {
	c.stopTimer()
	c.ticker = c.cfg.Tickers.Create(c.cfg.Tick)
}

func (c *Controller) stopTimer() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) send(ctx context.Context, m wire.Message) {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()
	if err := c.sender.Send(sctx, m); err != nil {
		c.listener.OnError(fmt.Errorf("send %s: %w", m.Kind, err))
	}
}

func (c *Controller) publish() {
	c.viewMu.Lock()
	c.view = c.st
	c.viewMu.Unlock()
}
