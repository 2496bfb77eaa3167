// Package judge runs drawing judgements on a bounded worker pool.
package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/internal/vision"
)

var (
	ErrQueueFull = errors.New("judge: queue full")
	ErrClosed    = errors.New("judge: dispatcher closed")
)

// Comments for synthetic verdicts.
const (
	CommentRateLimited = "API rate limit exceeded. Please wait a moment and try again."
	CommentAPIError    = "API error occurred. Please try again."
	CommentFailure     = "Error occurred. Please try again."
	CommentBusy        = "Judge is busy. Please try again."
)

// Job is one drawing to judge. Done is called exactly once from a worker.
type Job struct {
	SessionID string
	GameID    string
	Image     string // base64 PNG
	Target    string
	Done      func(Outcome)
}

type Outcome struct {
	Verdict verdict.Verdict
	Won     bool // this judgement alone; the session latches across rounds
	Err     error
	Elapsed time.Duration
}

type Config struct {
	Workers     int
	Queue       int
	Timeout     time.Duration // 0 = no per-judgement limit
	Instruction string
}

type Dispatcher struct {
	rec vision.Recognizer
	cfg Config

	jobs chan Job
	mu   sync.RWMutex
	shut bool
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(rec vision.Recognizer, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue < 0 {
		cfg.Queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{rec: rec, cfg: cfg, jobs: make(chan Job, cfg.Queue), ctx: ctx, cancel: cancel}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Submit enqueues without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shut {
		return ErrClosed
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued jobs. When ctx expires first,
// in-flight recognitions are cancelled and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.shut {
		d.shut = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	start := time.Now()
	delivered := false
	deliver := func(o Outcome) {
		if delivered || job.Done == nil {
			return
		}
		delivered = true
		o.Elapsed = time.Since(start)
		job.Done(o)
	}
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("judge_panic", zap.String("session", job.SessionID), zap.Any("panic", r))
			deliver(Outcome{Verdict: verdict.Unknown(CommentFailure), Err: fmt.Errorf("judge panic: %v", r)})
		}
	}()

	ctx := d.ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	raw, err := d.rec.Recognize(ctx, job.Image, d.cfg.Instruction)
	var o Outcome
	if err != nil {
		o = Outcome{Verdict: FromError(err), Err: err}
	} else {
		v := verdict.Parse(raw)
		o = Outcome{Verdict: v, Won: v.Matches(job.Target)}
	}

	obslog.L().Info("judge_done",
		zap.String("session", job.SessionID),
		zap.String("game", job.GameID),
		zap.String("target", job.Target),
		zap.String("object", o.Verdict.Object),
		zap.Bool("won", o.Won),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(o.Err),
	)
	deliver(o)
}

// FromError maps a recognizer failure onto the verdict shown to the player.
func FromError(err error) verdict.Verdict {
	var se *vision.StatusError
	switch {
	case errors.Is(err, vision.ErrRateLimited):
		return verdict.Unknown(CommentRateLimited)
	case errors.As(err, &se):
		return verdict.Unknown(CommentAPIError)
	default:
		return verdict.Unknown(CommentFailure)
	}
}

// Busy is reported when a judgement cannot be queued.
func Busy() verdict.Verdict { return verdict.Unknown(CommentBusy) }
