package call

import (
	"fmt"
	"regexp"
	"strings"
)

// ChatRole is the role of a chat-completion unit.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

// ChatToolCall is the tool-call descriptor attached to an assistant unit.
type ChatToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is one discrete unit in the shape an LLM chat API expects.
type ChatMessage struct {
	Role       ChatRole       `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

var funcNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeFunctionName replaces every character outside [A-Za-z0-9_-] with a
// dash, then collapses consecutive dashes. Kept for compatibility with names
// produced by earlier model versions. Idempotent.
func SanitizeFunctionName(name string) string {
	dashed := funcNameSanitizer.ReplaceAllString(name, "-")
	parts := strings.Split(dashed, "-")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "-")
}

// ChatUnits translates one transcript message into its chat-completion units.
//
// A human message becomes one user unit, an assistant message without tool
// calls one assistant unit. An assistant message with tool calls becomes one
// assistant unit carrying the descriptors, immediately followed by one
// tool-role unit per call with the matching ID; this pairing is what the chat
// API requires and must never be reordered.
func (m Message) ChatUnits() []ChatMessage {
	content := fmt.Sprintf("action=%s style=%s %s", m.Action, m.Style, m.Content)

	if m.Persona == PersonaHuman {
		return []ChatMessage{{Role: RoleUser, Content: content}}
	}

	if len(m.ToolCalls) == 0 {
		return []ChatMessage{{Role: RoleAssistant, Content: content}}
	}

	units := make([]ChatMessage, 0, 1+len(m.ToolCalls))
	descriptors := make([]ChatToolCall, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		descriptors = append(descriptors, ChatToolCall{
			ID:        tc.ID,
			Name:      SanitizeFunctionName(tc.FunctionName),
			Arguments: tc.Arguments,
		})
	}
	units = append(units, ChatMessage{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: descriptors,
	})
	for _, tc := range m.ToolCalls {
		units = append(units, ChatMessage{
			Role:       RoleTool,
			Content:    "",
			ToolCallID: tc.ID,
		})
	}
	return units
}

// ChatHistory translates the whole transcript, preserving order.
func (c *Call) ChatHistory() []ChatMessage {
	units := make([]ChatMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		units = append(units, m.ChatUnits()...)
	}
	return units
}
