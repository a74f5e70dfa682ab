package call

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Persona identifies who produced a transcript message.
type Persona string

const (
	PersonaHuman     Persona = "human"
	PersonaAssistant Persona = "assistant"
	PersonaTool      Persona = "tool"
)

// Action identifies the channel or call-control action a message belongs to.
type Action string

const (
	ActionCall   Action = "call"
	ActionHangup Action = "hangup"
	ActionSMS    Action = "sms"
	ActionTalk   Action = "talk"
)

// Style is the voice style requested for spoken synthesis.
type Style string

const (
	StyleNone     Style = "none"
	StyleCheerful Style = "cheerful"
	StyleSad      Style = "sad"
)

const secretLength = 16

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ToolCall is a function-invocation request emitted by the LLM. It is paired
// later with a tool-role message carrying the same ID.
type ToolCall struct {
	ID           string `json:"id"`
	FunctionName string `json:"function_name"`
	Arguments    string `json:"arguments"`
}

// Message is a single transcript entry. The transcript is append-only and
// chronological.
type Message struct {
	Persona   Persona    `json:"persona"`
	Action    Action     `json:"action"`
	Style     Style      `json:"style"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Initiate is the immutable configuration captured when a call is created.
// A caller supplying a different configuration gets a brand-new call.
type Initiate struct {
	BotName          string `json:"bot_name"`
	BotPhoneNumber   string `json:"bot_phone_number"`
	AgentPhoneNumber string `json:"agent_phone_number"`
	Lang             string `json:"lang"`
	Task             string `json:"task,omitempty"`
}

// Call is the durable record of one phone conversation: identity, callback
// secret, configuration and transcript. The store owns it; handlers load it,
// mutate an in-memory copy and write it back.
type Call struct {
	ID             string    `json:"call_id"`
	PhoneNumber    string    `json:"phone_number"`
	CallbackSecret string    `json:"callback_secret"`
	ConnectionID   string    `json:"connection_id,omitempty"`
	Initiate       Initiate  `json:"initiate"`
	Messages       []Message `json:"messages"`

	// Lang overrides the initiate language once the caller has picked one.
	Lang             string `json:"lang,omitempty"`
	RecognitionRetry int    `json:"recognition_retry"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Language returns the caller-selected language, falling back to the initiate
// configuration.
func (c *Call) Language() string {
	if c.Lang != "" {
		return c.Lang
	}
	return c.Initiate.Lang
}

// New creates a call with a fresh ID, a fresh 16-character callback secret and
// an empty transcript.
func New(phoneNumber string, initiate Initiate) *Call {
	now := time.Now().UTC()
	return &Call{
		ID:             uuid.NewString(),
		PhoneNumber:    phoneNumber,
		CallbackSecret: newSecret(),
		Initiate:       initiate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Append adds a message to the transcript, stamping its creation time.
func (c *Call) Append(m Message) {
	if m.Style == "" {
		m.Style = StyleNone
	}
	if m.Action == "" {
		m.Action = ActionTalk
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	c.Messages = append(c.Messages, m)
}

// EndedWithoutInteraction reports whether the call ended before the caller
// said anything: an opening call marker, a single assistant prompt, then a
// hangup. Post-call analytics is skipped for those.
func (c *Call) EndedWithoutInteraction() bool {
	n := len(c.Messages)
	if n < 3 {
		return n > 0
	}
	return c.Messages[n-3].Action == ActionCall &&
		c.Messages[n-2].Persona == PersonaAssistant &&
		c.Messages[n-1].Action == ActionHangup
}

func newSecret() string {
	max := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, secretLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failures are not recoverable at this level.
			panic(err)
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b)
}
