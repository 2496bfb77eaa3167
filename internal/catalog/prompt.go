package catalog

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	promptA  = "Draw a "
	promptAn = "Draw an "
)

// Prompt phrases a target as an instruction. "an" is chosen by first letter
// only (a, e, i, o, u); it does not try to handle vowel sounds.
func Prompt(target string) string {
	lower := strings.ToLower(strings.TrimSpace(target))
	if lower != "" && strings.ContainsRune("aeiou", rune(lower[0])) {
		return promptAn + target
	}
	return promptA + target
}

// Selector picks the target for a new game.
type Selector interface {
	Next() string
}

// RandomSelector picks uniformly at random; repeats across games are allowed.
type RandomSelector struct {
	mu  sync.Mutex
	cat *Catalog
	rng *rand.Rand
}

// NewRandomSelector uses rng when given, otherwise a time-seeded source.
func NewRandomSelector(cat *Catalog, rng *rand.Rand) *RandomSelector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomSelector{cat: cat, rng: rng}
}

func (s *RandomSelector) Next() string {
	s.mu.Lock()
	i := s.rng.Intn(s.cat.Len())
	s.mu.Unlock()
	return s.cat.At(i)
}

// FixedSelector cycles through a preset list. Used by tests and demo mode.
type FixedSelector struct {
	mu      sync.Mutex
	targets []string
	next    int
}

func NewFixedSelector(targets ...string) *FixedSelector {
	return &FixedSelector{targets: append([]string(nil), targets...)}
}

func (s *FixedSelector) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.targets) == 0 {
		return ""
	}
	t := s.targets[s.next%len(s.targets)]
	s.next++
	return t
}
