package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/ai-pictionary/internal/catalog"
	"github.com/park285/ai-pictionary/internal/events"
	"github.com/park285/ai-pictionary/internal/judge"
	"github.com/park285/ai-pictionary/internal/obslog"
	"github.com/park285/ai-pictionary/internal/stats"
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/pkg/wire"
)

type recordingEvents struct {
	mu  sync.Mutex
	got []events.GameEnded
}

func (r *recordingEvents) PublishGameEnded(_ context.Context, ev events.GameEnded) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) all() []events.GameEnded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.GameEnded(nil), r.got...)
}

type harness struct {
	conn   *pipeConn
	judge  *heldJudge
	store  *stats.MemoryStore
	events *recordingEvents
	done   chan error
	cancel context.CancelFunc
}

func start(t *testing.T, targets ...string) *harness {
	t.Helper()
	h := &harness{conn: newPipeConn(), judge: newHeldJudge(), store: stats.NewMemoryStore(), events: &recordingEvents{}, done: make(chan error, 1)}
	c := New(Deps{Stats: h.store, Judge: h.judge, Selector: catalog.NewFixedSelector(targets...), Events: h.events})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- c.Serve(ctx, h.conn) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) handshake(t *testing.T, name string) wire.Message {
	t.Helper()
	h.conn.send(name)
	st := h.conn.next(t)
	require.Equal(t, wire.KindStats, st.Kind)
	p := h.conn.next(t)
	require.Equal(t, wire.KindPrompt, p.Kind)
	return p
}

func complete(j judge.Job, object string) {
	v := verdict.Verdict{Object: object, Comment: "hmm"}
	j.Done(judge.Outcome{Verdict: v, Won: v.Matches(j.Target)})
}

func TestHandshakeSendsStatsThenPrompt(t *testing.T) {
	h := start(t, "elephant")
	require.NoError(t, h.store.RecordGame(context.Background(), "alice", true))

	h.conn.send("  alice  ")
	st := h.conn.next(t)
	assert.Equal(t, wire.Stats{Games: 1, Score: 1}, st.Stats)
	p := h.conn.next(t)
	assert.Equal(t, "Draw an elephant", p.Text)
}

func TestEmptyHandshakeIsUnknownUser(t *testing.T) {
	h := start(t, "cat")
	h.handshake(t, "   ")
	h.conn.send("GAMEEND:0")
	h.conn.next(t)

	got, _ := h.store.GetStats(context.Background(), AnonymousUser)
	assert.Equal(t, 1, got.TotalGames)
}

func TestElephantWinScenario(t *testing.T) {
	h := start(t, "elephant")
	h.handshake(t, "alice")

	h.conn.send("DRAWING:aGVsbG8=")
	j := h.judge.take(t)
	assert.Equal(t, "elephant", j.Target)
	assert.Equal(t, "aGVsbG8=", j.Image)
	complete(j, "Elephant")

	res := h.conn.next(t)
	require.Equal(t, wire.KindResult, res.Kind)
	assert.True(t, res.Won)
	assert.Equal(t, "Elephant", verdict.Parse(res.Verdict).Object)

	h.conn.send("GAMEEND:1")
	st := h.conn.next(t)
	assert.Equal(t, wire.Stats{Games: 1, Score: 1}, st.Stats)

	evs := h.events.all()
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Won)
	assert.Equal(t, "elephant", evs[0].Target)
	assert.Equal(t, 1, evs[0].Rounds)
}

func TestCatExhaustionScenario(t *testing.T) {
	h := start(t, "cat")
	h.handshake(t, "bob")

	for round := 0; round < 5; round++ {
		h.conn.send("DRAWING:x")
		complete(h.judge.take(t), "dog")
		res := h.conn.next(t)
		assert.False(t, res.Won, "round %d", round)
	}
	h.conn.send("GAMEEND:0")
	st := h.conn.next(t)
	assert.Equal(t, wire.Stats{Games: 1, Score: 0}, st.Stats)
}

func TestWinFlagLatchesWithinGame(t *testing.T) {
	h := start(t, "cat", "dog")
	h.handshake(t, "carol")

	h.conn.send("DRAWING:x")
	complete(h.judge.take(t), "cat")
	assert.True(t, h.conn.next(t).Won)

	h.conn.send("DRAWING:x")
	complete(h.judge.take(t), "banana")
	assert.True(t, h.conn.next(t).Won, "a later miss must not clear the flag")

	h.conn.send("NEWGAME")
	p := h.conn.next(t)
	assert.Equal(t, "Draw a dog", p.Text)

	h.conn.send("DRAWING:x")
	complete(h.judge.take(t), "banana")
	assert.False(t, h.conn.next(t).Won, "new game resets the flag")
}

func TestSecondDrawingWhileJudgingIsDropped(t *testing.T) {
	h := start(t, "cat")
	h.handshake(t, "dave")

	h.conn.send("DRAWING:one")
	j := h.judge.take(t)
	h.conn.send("DRAWING:two")
	// GAMEEND is processed in order, so its STATS reply proves "two" was seen
	h.conn.send("GAMEEND:0")
	assert.Equal(t, wire.KindStats, h.conn.next(t).Kind)
	select {
	case extra := <-h.judge.jobs:
		t.Fatalf("second judgement submitted: %+v", extra.Image)
	default:
	}

	complete(j, "cat")
	assert.True(t, h.conn.next(t).Won)

	// gate released
	h.conn.send("DRAWING:three")
	assert.Equal(t, "three", h.judge.take(t).Image)
}

func TestStaleResultDoesNotLatchNewGame(t *testing.T) {
	h := start(t, "cat", "dog")
	h.handshake(t, "erin")

	h.conn.send("DRAWING:x")
	old := h.judge.take(t)
	h.conn.send("NEWGAME")
	assert.Equal(t, "Draw a dog", h.conn.next(t).Text)

	// the old game's correct guess arrives late and is not reported
	complete(old, "cat")
	h.conn.send("GAMEEND:0")
	assert.Equal(t, wire.KindStats, h.conn.next(t).Kind)

	h.conn.send("DRAWING:y")
	complete(h.judge.take(t), "banana")
	assert.False(t, h.conn.next(t).Won)
}

func TestNewGameReleasesPendingJudgement(t *testing.T) {
	h := start(t, "cat", "banana")
	h.handshake(t, "fay")

	h.conn.send("DRAWING:old")
	old := h.judge.take(t)
	h.conn.send("NEWGAME")
	assert.Equal(t, "Draw a banana", h.conn.next(t).Text)

	h.conn.send("DRAWING:new")
	fresh := h.judge.take(t)
	assert.Equal(t, "new", fresh.Image)
	assert.Equal(t, "banana", fresh.Target)

	// the abandoned job finishing first must neither answer nor reopen the gate
	complete(old, "banana")
	h.conn.send("DRAWING:again")
	h.conn.send("GAMEEND:0")
	assert.Equal(t, wire.KindStats, h.conn.next(t).Kind, "no RESULT for the abandoned drawing")
	select {
	case extra := <-h.judge.jobs:
		t.Fatalf("judgement submitted while one was pending: %s", extra.Image)
	default:
	}

	complete(fresh, "banana")
	res := h.conn.next(t)
	require.Equal(t, wire.KindResult, res.Kind)
	assert.True(t, res.Won)
}

func TestQueueFullYieldsBusyResult(t *testing.T) {
	h := start(t, "cat")
	h.judge.err = judge.ErrQueueFull
	h.handshake(t, "frank")

	h.conn.send("DRAWING:x")
	res := h.conn.next(t)
	require.Equal(t, wire.KindResult, res.Kind)
	assert.Equal(t, judge.CommentBusy, verdict.Parse(res.Verdict).Comment)
	assert.False(t, res.Won)
}

func TestUnknownFramesAreIgnored(t *testing.T) {
	h := start(t, "cat", "dog")
	h.handshake(t, "gina")

	h.conn.send("HELLO THERE")
	h.conn.send("GAMEEND:maybe")
	st := h.conn.next(t)
	assert.Equal(t, wire.Stats{Games: 1, Score: 0}, st.Stats, "malformed bit counts as a loss")

	h.conn.send("NEWGAME")
	assert.Equal(t, wire.KindPrompt, h.conn.next(t).Kind)
}

func TestEveryGameEndCounts(t *testing.T) {
	h := start(t, "cat")
	h.handshake(t, "hank")

	h.conn.send("GAMEEND:1")
	h.conn.next(t)
	h.conn.send("GAMEEND:1")
	st := h.conn.next(t)
	assert.Equal(t, wire.Stats{Games: 2, Score: 2}, st.Stats)
}

func TestDisconnectEndsServe(t *testing.T) {
	h := start(t, "cat")
	h.handshake(t, "ivy")
	h.conn.send("DRAWING:x")
	j := h.judge.take(t)

	require.NoError(t, h.conn.Close())
	err := <-h.done
	assert.Error(t, err)
	h.done <- err // for cleanup

	// a late result after disconnect is dropped without panicking
	complete(j, "cat")
}

func TestNewGameLogsCategory(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obslog.Set(zap.New(core))
	t.Cleanup(func() { obslog.Set(nil) })

	cat, err := catalog.Parse([]byte("animals:\n  - cat\n"))
	require.NoError(t, err)
	conn := newPipeConn()
	c := New(Deps{Stats: stats.NewMemoryStore(), Judge: newHeldJudge(), Selector: catalog.NewFixedSelector("cat"), Catalog: cat})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, conn) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn.send("jo")
	conn.next(t)
	conn.next(t)

	entries := logs.FilterMessage("session_new_game").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "animals", entries[0].ContextMap()["category"])
	assert.Equal(t, "cat", entries[0].ContextMap()["target"])
}
