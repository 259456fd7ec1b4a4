// Package llm provides the chat completion client used for conversational
// replies and report summaries. Gemini and any OpenAI-compatible endpoint
// (OpenAI, DeepSeek, Doubao, ...) are supported behind the same interface.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Role tags a turn in a prompt.
type Role string

// Prompt roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged piece of a prompt.
type Turn struct {
	Role Role
	Text string
}

// System, User and Assistant build turns.
func System(text string) Turn    { return Turn{Role: RoleSystem, Text: text} }
func User(text string) Turn      { return Turn{Role: RoleUser, Text: text} }
func Assistant(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("model returned no text")

// ErrNoPrompt is returned when a prompt holds no user or assistant turn.
var ErrNoPrompt = errors.New("prompt has no conversational turns")

// Client generates a completion for an ordered list of turns.
type Client interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// systemText joins the system turns of a prompt.
func systemText(turns []Turn) string {
	var parts []string
	for _, t := range turns {
		if t.Role == RoleSystem && strings.TrimSpace(t.Text) != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
