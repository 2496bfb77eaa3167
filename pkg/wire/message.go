// Package wire holds the framed string protocol spoken between the drawing
// client and the judging server.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a protocol message by its prefix.
type Kind string

const (
	KindHandshake Kind = "HANDSHAKE"
	KindStats     Kind = "STATS"
	KindPrompt    Kind = "PROMPT"
	KindDrawing   Kind = "DRAWING"
	KindResult    Kind = "RESULT"
	KindNewGame   Kind = "NEWGAME"
	KindGameEnd   Kind = "GAMEEND"
	KindUnknown   Kind = "UNKNOWN"
)

const (
	prefixStats   = "STATS:"
	prefixPrompt  = "PROMPT:"
	prefixDrawing = "DRAWING:"
	prefixResult  = "RESULT:"
	prefixGameEnd = "GAMEEND:"
	tokenNewGame  = "NEWGAME"
	wonSeparator  = "|WON:"
)

// Message is one decoded frame. Only the fields relevant to Kind are set.
type Message struct {
	Kind Kind

	Username string // handshake
	Text     string // prompt text, raw stats text, raw unknown frame
	Image    string // base64 PNG
	Verdict  string // RESULT json
	Won      bool   // RESULT cumulative flag, GAMEEND bit
	Stats    Stats
}

// Stats is the rendered per-user statistics line.
type Stats struct {
	Games int
	Score int
}

func Handshake(username string) Message { return Message{Kind: KindHandshake, Username: username} }
func Prompt(text string) Message        { return Message{Kind: KindPrompt, Text: text} }
func Drawing(image string) Message      { return Message{Kind: KindDrawing, Image: image} }
func NewGame() Message                  { return Message{Kind: KindNewGame} }
func GameEnd(won bool) Message          { return Message{Kind: KindGameEnd, Won: won} }

func StatsMessage(games, score int) Message {
	return Message{Kind: KindStats, Stats: Stats{Games: games, Score: score}}
}

func Result(verdictJSON string, won bool) Message {
	return Message{Kind: KindResult, Verdict: verdictJSON, Won: won}
}

// Encode renders m as a single frame. Line breaks are stripped from free text
// so the frame survives line-oriented transports.
func Encode(m Message) string {
	switch m.Kind {
	case KindHandshake:
		return oneLine(m.Username)
	case KindStats:
		return prefixStats + FormatStats(m.Stats)
	case KindPrompt:
		return prefixPrompt + oneLine(m.Text)
	case KindDrawing:
		return prefixDrawing + m.Image
	case KindResult:
		return prefixResult + oneLine(m.Verdict) + wonSeparator + strconv.FormatBool(m.Won)
	case KindNewGame:
		return tokenNewGame
	case KindGameEnd:
		if m.Won {
			return prefixGameEnd + "1"
		}
		return prefixGameEnd + "0"
	default:
		return oneLine(m.Text)
	}
}

// ParseClient decodes a frame sent by the drawing side after the handshake.
// Anything unrecognised comes back as KindUnknown with the raw frame in Text.
func ParseClient(frame string) Message {
	switch {
	case frame == tokenNewGame:
		return NewGame()
	case strings.HasPrefix(frame, prefixGameEnd):
		// only "1" counts as a win
		return GameEnd(strings.TrimSpace(frame[len(prefixGameEnd):]) == "1")
	case strings.HasPrefix(frame, prefixDrawing):
		return Drawing(frame[len(prefixDrawing):])
	default:
		return Message{Kind: KindUnknown, Text: frame}
	}
}

// ParseServer decodes a frame sent by the judging side.
func ParseServer(frame string) Message {
	switch {
	case strings.HasPrefix(frame, prefixPrompt):
		return Prompt(frame[len(prefixPrompt):])
	case strings.HasPrefix(frame, prefixResult):
		body := frame[len(prefixResult):]
		// split on the last separator so a comment can't spoof the flag
		idx := strings.LastIndex(body, wonSeparator)
		if idx < 0 {
			return Result(body, false)
		}
		won := strings.TrimSpace(body[idx+len(wonSeparator):]) == "true"
		return Result(body[:idx], won)
	case strings.HasPrefix(frame, prefixStats):
		text := frame[len(prefixStats):]
		st, _ := ParseStats(text)
		return Message{Kind: KindStats, Text: text, Stats: st}
	default:
		return Message{Kind: KindUnknown, Text: frame}
	}
}

// FormatStats renders the human-readable stats line, e.g. "Games: 3 | Score: 1".
func FormatStats(s Stats) string {
	return fmt.Sprintf("Games: %d | Score: %d", s.Games, s.Score)
}

// ParseStats reads back a FormatStats line.
func ParseStats(text string) (Stats, error) {
	var s Stats
	left, right, ok := strings.Cut(text, "|")
	if !ok {
		return s, fmt.Errorf("malformed stats %q", text)
	}
	games, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(left), "Games:")))
	if err != nil {
		return s, fmt.Errorf("parse games: %w", err)
	}
	score, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(right), "Score:")))
	if err != nil {
		return s, fmt.Errorf("parse score: %w", err)
	}
	s.Games, s.Score = games, score
	return s, nil
}

func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
