package catalog

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 177, c.Len())
	assert.Equal(t, "cat", c.At(0))
	assert.True(t, c.Contains("Teddy Bear"))
	assert.Equal(t, "animals", c.Category("elephant"))
	assert.False(t, c.Contains("spaceship"))
}

func TestPromptArticleForEveryTarget(t *testing.T) {
	c := mustDefault(t)
	for _, target := range c.Targets() {
		p := Prompt(target)
		vowel := strings.ContainsRune("aeiou", rune(target[0]))
		if vowel {
			assert.Equal(t, "Draw an "+target, p, target)
		} else {
			assert.Equal(t, "Draw a "+target, p, target)
		}
	}
}

func TestPromptHeuristicIsLetterBased(t *testing.T) {
	assert.Equal(t, "Draw an umbrella", Prompt("umbrella"))
	assert.Equal(t, "Draw an ice cream", Prompt("ice cream"))
	// letter heuristic, not pronunciation
	assert.Equal(t, "Draw a hour", Prompt("hour"))
	assert.Equal(t, "Draw an Owl", Prompt("Owl"))
}

func TestParseOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mini.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- Cat\n- dog\n- cat\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, c.Targets())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte("animals: []\n"))
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = Parse([]byte("animals: cat\n"))
	assert.Error(t, err)
}

func TestRandomSelectorDeterministicWithSeed(t *testing.T) {
	c := mustDefault(t)
	a := NewRandomSelector(c, rand.New(rand.NewSource(42)))
	b := NewRandomSelector(c, rand.New(rand.NewSource(42)))
	for i := 0; i < 20; i++ {
		got := a.Next()
		assert.Equal(t, got, b.Next())
		assert.True(t, c.Contains(got))
	}
}

func TestRandomSelectorAllowsRepeats(t *testing.T) {
	c, err := Parse([]byte("- cat\n"))
	require.NoError(t, err)
	s := NewRandomSelector(c, nil)
	assert.Equal(t, "cat", s.Next())
	assert.Equal(t, "cat", s.Next())
}

func TestFixedSelectorCycles(t *testing.T) {
	s := NewFixedSelector("elephant", "cat")
	assert.Equal(t, "elephant", s.Next())
	assert.Equal(t, "cat", s.Next())
	assert.Equal(t, "elephant", s.Next())
	assert.Equal(t, "", NewFixedSelector().Next())
}

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}
