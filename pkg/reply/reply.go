// Package reply generates an assistant reply for a finished utterance.
//
// The session engine treats reply generation as an opaque collaborator:
// text in, text out. Implementations may be slow or fail; the caller
// bounds them with a context.
package reply

import (
	"context"
	"strings"
)

// Generator produces a spoken-style reply for a user transcript.
type Generator interface {
	// Generate returns the assistant reply for the given transcript.
	Generate(ctx context.Context, transcript string) (string, error)
}

// Turn is one entry in a conversation history.
type Turn struct {
	Role string // "USER" or "ASSISTANT"
	Text string
}

// BuildPrompt formats prior turns plus the latest user text with
// [USER]/[ASSISTANT] labels. The last line is always the fresh user text.
func BuildPrompt(history []Turn, latestUser string) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(t.Role))
		b.WriteString("] ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString("[USER] ")
	b.WriteString(latestUser)
	return b.String()
}

// ChunkSentences splits a reply into sentence-like chunks so synthesis can
// be cut between sentences on barge-in. Splits on '.', '?', '!' and
// newlines, retaining punctuation.
func ChunkSentences(text string) []string {
	txt := strings.TrimSpace(text)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if tail := strings.TrimSpace(b.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}
