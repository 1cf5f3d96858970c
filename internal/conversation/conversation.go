// Package conversation defines the conversation history model shared by the
// analyzer, planner, and pipeline.
//
// History is always an explicit ordered list of typed turns. It is never
// serialized into a "User: ...\nAssistant: ..." string and re-parsed; callers
// that need a textual rendering ask for one explicitly.
package conversation

import (
	"strings"
	"unicode/utf8"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DropDangling removes a trailing user turn that has no paired assistant
// reply. This mirrors the behavior of history round-tripping in earlier
// revisions of the system; it is now an explicit, named policy selected by
// the caller rather than an accident of re-parsing.
func DropDangling(turns []Turn) []Turn {
	if len(turns) == 0 {
		return turns
	}
	if turns[len(turns)-1].Role == RoleUser {
		return turns[:len(turns)-1]
	}
	return turns
}

// TailText renders the most recent turns as plain text and returns at most
// the last n bytes. The retrieval stage appends this to the search query so
// follow-up questions ("what about its population?") stay anchored to the
// topic under discussion.
func TailText(turns []Turn, n int) string {
	if len(turns) == 0 || n <= 0 {
		return ""
	}

	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Content)
	}

	s := b.String()
	if len(s) <= n {
		return s
	}
	// Never cut a multi-byte rune; advance to the next rune start.
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// Render formats turns for inclusion in a generation prompt.
// Returns "" when there are no turns; the caller substitutes its
// new-conversation instruction in that case.
func Render(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
