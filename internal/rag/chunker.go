package rag

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text recursively: it tries paragraph breaks first, then
// lines, sentences and words, and only cuts between runes as a last resort.
// Pieces are merged greedily up to Size runes, carrying up to Overlap runes of
// the previous chunk into the next one.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

// Split returns trimmed, non-empty chunks in document order. Empty input
// yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := c.split(text, c.Separators)
	out := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := ""
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		pieces = splitRunes(text)
	} else {
		// Keep separators attached so sentence punctuation survives.
		pieces = strings.SplitAfter(text, separator)
	}

	var chunks, pending []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= c.Size {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending)...)
			pending = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, c.split(piece, rest)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending)...)
	}
	return chunks
}

func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	var windowLen []int
	total := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > c.Size && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, ""))
			for len(window) > 0 && (total > c.Overlap || total+n > c.Size) {
				total -= windowLen[0]
				window, windowLen = window[1:], windowLen[1:]
			}
		}
		window = append(window, piece)
		windowLen = append(windowLen, n)
		total += n
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
