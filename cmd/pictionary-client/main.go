package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/ai-pictionary/internal/client"
	appcfg "github.com/park285/ai-pictionary/internal/config"
	"github.com/park285/ai-pictionary/internal/msgcat"
	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/round"
	"github.com/park285/ai-pictionary/internal/sketch"
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/pkg/wire"
)

const (
	canvasSize = 512
	uploadSize = 256
)

func main() {
	cfg, err := appcfg.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log.Options()); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_load_failed", zap.Error(err))
	}

	username := cfg.Username
	if len(os.Args) > 1 {
		username = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		msgs: msgs,
		out:  &lockedWriter{w: os.Stdout},
		round: round.Config{
			FirstRound: int(cfg.FirstRound / time.Second),
			NextRound:  int(cfg.NextRound / time.Second),
		},
		dial: func(ctx context.Context, username string) (*client.Client, error) {
			dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return client.Dial(dctx, cfg.ServerURL, username, cfg.MaxFrame)
		},
		server: cfg.ServerURL,
	}
	a.run(ctx, stdinLines(), username)
}

func stdinLines() <-chan string {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	return lines
}

// app is the connect/play cycle. Losing the connection returns to the
// username prompt.
type app struct {
	msgs   *msgcat.Catalog
	out    io.Writer
	round  round.Config
	dial   func(ctx context.Context, username string) (*client.Client, error)
	server string
}

func (a *app) println(s string) { fmt.Fprintln(a.out, s) }

// run returns when ctx ends, stdin closes or the user quits.
func (a *app) run(ctx context.Context, lines <-chan string, username string) {
	a.println(a.msgs.Text("help", nil))
	for {
		if username == "" {
			name, ok := a.askUsername(ctx, lines, username)
			if !ok {
				return
			}
			username = name
		}
		if quit := a.play(ctx, lines, username); quit {
			return
		}
		a.println(a.msgs.Text("connect.lost", nil))
		name, ok := a.askUsername(ctx, lines, username)
		if !ok {
			return
		}
		username = name
	}
}

// askUsername reads one line; an empty line keeps current.
func (a *app) askUsername(ctx context.Context, lines <-chan string, current string) (string, bool) {
	fmt.Fprint(a.out, a.msgs.Text("connect.username", map[string]any{"Current": current}))
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		if !ok {
			return "", false
		}
		name := strings.TrimSpace(line)
		if name == "" {
			name = current
		}
		if strings.EqualFold(name, "quit") || strings.EqualFold(name, "exit") {
			return "", false
		}
		return name, true
	}
}

// play runs one connection and reports whether the user asked to quit.
func (a *app) play(ctx context.Context, lines <-chan string, username string) bool {
	conn, err := a.dial(ctx, username)
	if err != nil {
		a.println(a.msgs.Text("connect.failed", map[string]any{"Server": a.server, "Err": err.Error()}))
		return ctx.Err() != nil
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	canvas := &switchCanvas{sk: sketch.New(canvasSize, canvasSize, sketch.WithUploadSize(uploadSize))}
	ctl := round.New(a.round, canvas, conn, printer{msgs: a.msgs, out: a.out})
	go func() {
		_ = ctl.Run(connCtx)
	}()
	lost := make(chan struct{})
	go func() {
		defer close(lost)
		_ = conn.Run(connCtx, ctl)
	}()

	sh := &shell{ctl: ctl, canvas: canvas, msgs: a.msgs, out: a.out}
	for {
		select {
		case <-ctx.Done():
			return true
		case <-lost:
			return ctx.Err() != nil
		case line, ok := <-lines:
			if !ok {
				return true
			}
			if quit := sh.handle(line); quit {
				return true
			}
		}
	}
}

// lockedWriter serializes output from the controller and stdin goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// shell runs stdin commands against the round controller.
type shell struct {
	ctl    *round.Controller
	canvas *switchCanvas
	msgs   *msgcat.Catalog
	out    io.Writer
}

// handle runs one stdin line and reports whether to exit.
func (sh *shell) handle(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]
	switch cmd {
	case "stroke":
		pts, err := parsePoints(args)
		if err != nil {
			fmt.Fprintln(sh.out, "stroke:", err)
			return false
		}
		sh.canvas.Sketch().Draw(pts...)
	case "brush":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, sh.msgs.Text("usage.brush", nil))
			return false
		}
		n, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fmt.Fprintln(sh.out, "brush:", err)
			return false
		}
		sh.canvas.Sketch().SetBrush(n)
	case "color":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, sh.msgs.Text("usage.color", nil))
			return false
		}
		if err := sh.canvas.Sketch().SetColor(args[0]); err != nil {
			fmt.Fprintln(sh.out, "color:", err)
		}
	case "clear":
		sh.canvas.Clear()
	case "load":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, sh.msgs.Text("usage.load", nil))
			return false
		}
		sh.canvas.UseFile(args[0])
	case "sketch":
		sh.canvas.UseFile("")
	case "save":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, sh.msgs.Text("usage.save", nil))
			return false
		}
		if err := os.WriteFile(args[0], sh.canvas.Sketch().SVG(), 0o644); err != nil {
			fmt.Fprintln(sh.out, "save:", err)
		}
	case "submit":
		sh.ctl.Submit()
	case "new":
		sh.ctl.RequestNewGame()
	case "state":
		st := sh.ctl.State()
		fmt.Fprintln(sh.out, sh.msgs.Text("state", map[string]any{
			"Phase": st.Phase.String(), "Prompt": st.Prompt, "Round": st.RoundIndex + 1,
			"Remaining": st.Remaining, "Won": st.GameWon, "Submit": st.SubmitEnabled,
		}))
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(sh.out, sh.msgs.Text("help", nil))
	default:
		fmt.Fprintln(sh.out, sh.msgs.Text("unknown", nil))
	}
	return false
}

func parsePoints(args []string) ([]sketch.Point, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("need at least one x,y point")
	}
	pts := make([]sketch.Point, 0, len(args))
	for _, a := range args {
		xs, ys, ok := strings.Cut(a, ",")
		if !ok {
			return nil, fmt.Errorf("bad point %q", a)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("bad point %q", a)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("bad point %q", a)
		}
		pts = append(pts, sketch.Point{X: x, Y: y})
	}
	return pts, nil
}

// switchCanvas submits either the in-memory sketch or a file on disk.
type switchCanvas struct {
	mu   sync.Mutex
	sk   *sketch.Sketch
	file *sketch.FileCanvas
}

func (c *switchCanvas) Sketch() *sketch.Sketch { return c.sk }

func (c *switchCanvas) UseFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path == "" {
		c.file = nil
		return
	}
	c.file = &sketch.FileCanvas{Path: path, Upload: uploadSize}
}

func (c *switchCanvas) Snapshot() (string, error) {
	c.mu.Lock()
	f := c.file
	c.mu.Unlock()
	if f != nil {
		return f.Snapshot()
	}
	return c.sk.Snapshot()
}

func (c *switchCanvas) Clear() { c.sk.Clear() }

// printer writes controller updates to out.
type printer struct {
	msgs *msgcat.Catalog
	out  io.Writer
}

func (p printer) OnPrompt(prompt string) {
	fmt.Fprintln(p.out, p.msgs.Text("round.prompt", map[string]any{"Prompt": prompt}))
}

func (p printer) OnRound(index, deadline int) {
	fmt.Fprintln(p.out, p.msgs.Text("round.start", map[string]any{"Round": index + 1, "Seconds": deadline}))
}

func (p printer) OnCountdown(remaining int) {
	if remaining <= 5 || remaining%10 == 0 {
		fmt.Fprintln(p.out, p.msgs.Text("round.countdown", map[string]any{"Seconds": remaining}))
	}
}

func (p printer) OnVerdict(v verdict.Verdict, gameWon bool) {
	fmt.Fprintln(p.out, p.msgs.Text("verdict.guess", map[string]any{"Object": v.Object, "Comment": v.Comment}))
	if gameWon {
		fmt.Fprintln(p.out, p.msgs.Text("verdict.won", nil))
	}
}

func (p printer) OnStats(s wire.Stats) { fmt.Fprintln(p.out, wire.FormatStats(s)) }

func (p printer) OnPhase(ph round.Phase) {
	switch ph {
	case round.PhaseExhausted:
		fmt.Fprintln(p.out, p.msgs.Text("round.exhausted", nil))
	case round.PhaseDisconnected:
		fmt.Fprintln(p.out, p.msgs.Text("round.disconnected", nil))
	}
}

func (printer) OnError(err error) { obslog.L().Warn("client_round_error", zap.Error(err)) }
