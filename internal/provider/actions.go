// Package provider is the outbound call-control surface of the telephony
// provider. The switchboard core consumes it; the provider executes the
// actions against the live call.
package provider

import (
	"context"

	"github.com/antoniostano/switchboard/internal/call"
)

// IVRChoice is one recognizable option offered to the caller, selectable by
// DTMF tone or by speech.
type IVRChoice struct {
	Label   string   `json:"label"`
	Phrases []string `json:"phrases,omitempty"`
	Tone    string   `json:"tone,omitempty"`
}

// Actions drives a call on the provider side. Implementations must tolerate
// concurrent invocation; errors are propagated to the caller without internal
// retry.
type Actions interface {
	// CreateCall places an outbound call and returns the provider connection id.
	CreateCall(ctx context.Context, phoneNumber, callbackURL, streamURL string) (string, error)
	// AnswerCall accepts an inbound call identified by its opaque incoming-call
	// token and returns the provider connection id.
	AnswerCall(ctx context.Context, incomingContext, callbackURL, streamURL string) (string, error)
	PlayText(ctx context.Context, c *call.Call, text string, style call.Style, contexts []string) error
	RecognizeIVR(ctx context.Context, c *call.Call, text string, choices []IVRChoice, contexts []string) error
	Transfer(ctx context.Context, c *call.Call, target string) error
	Hangup(ctx context.Context, c *call.Call) error
	StartMediaStreaming(ctx context.Context, c *call.Call) error
	SendSMS(ctx context.Context, phoneNumber, content string) error
}
