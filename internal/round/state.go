package round

import (
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/pkg/wire"
)

type Phase int

const (
	PhaseIdle Phase = iota // waiting for a prompt
	PhaseRoundActive
	PhaseJudging
	PhaseWonPaused
	PhaseExhausted
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRoundActive:
		return "round_active"
	case PhaseJudging:
		return "judging"
	case PhaseWonPaused:
		return "won_paused"
	case PhaseExhausted:
		return "exhausted"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// State is a copy of the controller's round state.
type State struct {
	Prompt        string
	RoundIndex    int
	IsFirstRound  bool
	Remaining     int
	GameWon       bool // mirrors the judging side; never derived locally
	Phase         Phase
	SubmitEnabled bool
	Stats         wire.Stats
	LastVerdict   verdict.Verdict
}

// Listener receives UI updates on the controller goroutine. Implementations
// must not block.
type Listener interface {
	OnPrompt(prompt string)
	OnRound(index, deadline int)
	OnCountdown(remaining int)
	OnVerdict(v verdict.Verdict, gameWon bool)
	OnStats(s wire.Stats)
	OnPhase(p Phase)
	OnError(err error)
}

// NopListener ignores everything; embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnPrompt(string)                 {}
func (NopListener) OnRound(int, int)                {}
func (NopListener) OnCountdown(int)                 {}
func (NopListener) OnVerdict(verdict.Verdict, bool) {}
func (NopListener) OnStats(wire.Stats)              {}
func (NopListener) OnPhase(Phase)                   {}
func (NopListener) OnError(error)                   {}
