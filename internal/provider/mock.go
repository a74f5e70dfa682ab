package provider

import (
	"context"
	"sync"

	"github.com/antoniostano/switchboard/internal/call"
)

// Action records one invocation against the mock client.
type Action struct {
	Name     string
	CallID   string
	Target   string
	Text     string
	Contexts []string
}

// Mock is an in-memory Actions implementation for tests.
type Mock struct {
	mu           sync.Mutex
	actions      []Action
	ConnectionID string
	Err          error
}

func NewMock() *Mock {
	return &Mock{ConnectionID: "conn-mock"}
}

func (m *Mock) record(a Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
}

// Actions returns a copy of everything recorded so far.
func (m *Mock) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Action, len(m.actions))
	copy(out, m.actions)
	return out
}

// Named returns recorded actions with the given name.
func (m *Mock) Named(name string) []Action {
	var out []Action
	for _, a := range m.Actions() {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

func (m *Mock) CreateCall(_ context.Context, phoneNumber, callbackURL, streamURL string) (string, error) {
	m.record(Action{Name: "create", Target: phoneNumber, Text: callbackURL + " " + streamURL})
	return m.ConnectionID, m.Err
}

func (m *Mock) AnswerCall(_ context.Context, incomingContext, callbackURL, streamURL string) (string, error) {
	m.record(Action{Name: "answer", Target: incomingContext, Text: callbackURL + " " + streamURL})
	return m.ConnectionID, m.Err
}

func (m *Mock) PlayText(_ context.Context, c *call.Call, text string, _ call.Style, contexts []string) error {
	m.record(Action{Name: "play", CallID: c.ID, Text: text, Contexts: contexts})
	return m.Err
}

func (m *Mock) RecognizeIVR(_ context.Context, c *call.Call, text string, _ []IVRChoice, contexts []string) error {
	m.record(Action{Name: "recognize", CallID: c.ID, Text: text, Contexts: contexts})
	return m.Err
}

func (m *Mock) Transfer(_ context.Context, c *call.Call, target string) error {
	m.record(Action{Name: "transfer", CallID: c.ID, Target: target})
	return m.Err
}

func (m *Mock) Hangup(_ context.Context, c *call.Call) error {
	m.record(Action{Name: "hangup", CallID: c.ID})
	return m.Err
}

func (m *Mock) StartMediaStreaming(_ context.Context, c *call.Call) error {
	m.record(Action{Name: "start_streaming", CallID: c.ID})
	return m.Err
}

func (m *Mock) SendSMS(_ context.Context, phoneNumber, content string) error {
	m.record(Action{Name: "sms", Target: phoneNumber, Text: content})
	return m.Err
}
