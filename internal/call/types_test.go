package call

import (
	"testing"
)

func TestNewCallSecretShape(t *testing.T) {
	c := New("+15551234567", Initiate{BotName: "switchboard"})
	if c.ID == "" {
		t.Fatalf("call ID should not be empty")
	}
	if len(c.CallbackSecret) != 16 {
		t.Fatalf("secret length = %d, want 16", len(c.CallbackSecret))
	}
	for _, r := range c.CallbackSecret {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			t.Fatalf("secret contains invalid character %q", r)
		}
	}
	if len(c.Messages) != 0 {
		t.Fatalf("new call transcript should be empty, got %d messages", len(c.Messages))
	}
}

func TestNewCallSecretsDiffer(t *testing.T) {
	a := New("+15551234567", Initiate{})
	b := New("+15551234567", Initiate{})
	if a.CallbackSecret == b.CallbackSecret {
		t.Fatalf("two calls share the same secret")
	}
	if a.ID == b.ID {
		t.Fatalf("two calls share the same ID")
	}
}

func TestAppendDefaults(t *testing.T) {
	c := New("+15551234567", Initiate{})
	c.Append(Message{Persona: PersonaHuman, Content: "hello"})

	if len(c.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(c.Messages))
	}
	got := c.Messages[0]
	if got.Action != ActionTalk {
		t.Fatalf("Action = %q, want %q", got.Action, ActionTalk)
	}
	if got.Style != StyleNone {
		t.Fatalf("Style = %q, want %q", got.Style, StyleNone)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be stamped")
	}
}

func TestEndedWithoutInteraction(t *testing.T) {
	c := New("+15551234567", Initiate{})
	c.Append(Message{Persona: PersonaHuman, Action: ActionCall})
	c.Append(Message{Persona: PersonaAssistant, Content: "hello, how can I help?"})
	c.Append(Message{Persona: PersonaHuman, Action: ActionHangup})
	if !c.EndedWithoutInteraction() {
		t.Fatalf("call/assistant/hangup tail should count as no interaction")
	}

	c.Append(Message{Persona: PersonaHuman, Content: "my car broke down"})
	if c.EndedWithoutInteraction() {
		t.Fatalf("transcript with a caller turn should not count as no interaction")
	}
}
