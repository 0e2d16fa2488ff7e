package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	namespaceSlugMax  = 40
	namespaceHashHex  = 24
	defaultNamespace  = "doc"
	newlineWhitespace = " "
)

var newlineReplacer = strings.NewReplacer("\r\n", newlineWhitespace, "\n", newlineWhitespace, "\r", newlineWhitespace)

// NormalizeNewlines replaces every line break with a single space. Ingestion
// and queries must both go through it so they embed in the same space.
func NormalizeNewlines(s string) string {
	return newlineReplacer.Replace(s)
}

// TruncateBytes cuts s to at most n bytes without splitting a rune.
func TruncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ContentHash is the storage identity of a chunk.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Namespace derives the vector namespace of a document from its file key.
// The readable prefix keeps only ASCII letters and digits; the hash suffix
// covers the full key, so keys that differ only in stripped characters
// still land in different namespaces.
func Namespace(fileKey string) string {
	var sb strings.Builder
	lastDash := true
	for i := 0; i < len(fileKey) && sb.Len() < namespaceSlugMax; i++ {
		c := fileKey[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			sb.WriteByte(c)
			lastDash = false
		case c >= 'A' && c <= 'Z':
			sb.WriteByte(c + ('a' - 'A'))
			lastDash = false
		case c < utf8.RuneSelf && !lastDash:
			sb.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if slug == "" {
		slug = defaultNamespace
	}

	sum := sha256.Sum256([]byte(fileKey))
	return slug + "-" + hex.EncodeToString(sum[:])[:namespaceHashHex]
}
