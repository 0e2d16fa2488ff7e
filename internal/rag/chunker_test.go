package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Empty(t *testing.T) {
	c := NewChunker(100, 20)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n  "))
}

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	c := NewChunker(100, 20)
	assert.Equal(t, []string{"The capital of France is Paris."}, c.Split("  The capital of France is Paris.  "))
}

func TestChunker_BoundsAndCoverage(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("Sentence number ")
		sb.WriteString(strings.Repeat("x", i%7+1))
		sb.WriteString(" talks about topic ")
		sb.WriteString(string(rune('a' + i%26)))
		sb.WriteString(". ")
	}
	text := sb.String()

	c := NewChunker(120, 30)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 120)
		assert.NotEmpty(t, chunk)
	}

	// Every sentence survives intact in at least one chunk.
	for _, sentence := range strings.SplitAfter(text, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk, sentence) {
				found = true
				break
			}
		}
		assert.True(t, found, "sentence %q lost", sentence)
	}
}

func TestChunker_Overlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "Item %02d is here. ", i)
	}
	chunks := NewChunker(50, 20).Split(sb.String())
	require.Len(t, chunks, 19)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-len("Item 00 is here."):]
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d should start with the tail of chunk %d", i, i-1)
	}
}

func TestChunker_PrefersParagraphs(t *testing.T) {
	para1 := strings.Repeat("one ", 20)
	para2 := strings.Repeat("two ", 20)
	chunks := NewChunker(100, 0).Split(para1 + "\n\n" + para2)
	require.Len(t, chunks, 2)
	assert.NotContains(t, chunks[0], "two")
	assert.NotContains(t, chunks[1], "one")
}

func TestChunker_HardCutsUnbrokenText(t *testing.T) {
	text := strings.Repeat("é", 250)
	chunks := NewChunker(100, 0).Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, 100, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 50, utf8.RuneCountInString(chunks[2]))
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, 1000, c.Size)
	assert.Equal(t, 200, c.Overlap)

	c = NewChunker(10, 10)
	assert.Equal(t, 2, c.Overlap)
}
