// Package events decodes provider event envelopes and dispatches them to the
// call state machine.
package events

import (
	"encoding/json"
	"fmt"
	"log"
)

// Kind is the closed set of provider event kinds. Wire strings are decoded
// once; anything unknown maps to KindUnrecognized and is ignored downstream.
type Kind string

const (
	KindConnected          Kind = "connected"
	KindDisconnected       Kind = "disconnected"
	KindRecognizeCompleted Kind = "recognize_completed"
	KindRecognizeFailed    Kind = "recognize_failed"
	KindPlayCompleted      Kind = "play_completed"
	KindPlayFailed         Kind = "play_failed"
	KindTransferAccepted   Kind = "transfer_accepted"
	KindTransferFailed     Kind = "transfer_failed"
	KindUnrecognized       Kind = "unrecognized"
)

var wireKinds = map[string]Kind{
	"Microsoft.Communication.CallConnected":        KindConnected,
	"Microsoft.Communication.CallDisconnected":     KindDisconnected,
	"Microsoft.Communication.RecognizeCompleted":   KindRecognizeCompleted,
	"Microsoft.Communication.RecognizeFailed":      KindRecognizeFailed,
	"Microsoft.Communication.PlayCompleted":        KindPlayCompleted,
	"Microsoft.Communication.PlayFailed":           KindPlayFailed,
	"Microsoft.Communication.CallTransferAccepted": KindTransferAccepted,
	"Microsoft.Communication.CallTransferFailed":   KindTransferFailed,
}

// Context labels round-tripped through the provider's operationContext field
// so a completion event can tell which prompt it belongs to.
type Context string

const (
	ContextIVRLangSelect  Context = "ivr_lang_select"
	ContextGoodbye        Context = "goodbye"
	ContextTransferFailed Context = "transfer_failed"
	ContextConnectAgent   Context = "connect_agent"
)

var knownContexts = map[Context]bool{
	ContextIVRLangSelect:  true,
	ContextGoodbye:        true,
	ContextTransferFailed: true,
	ContextConnectAgent:   true,
}

// ContextSet is the decoded operationContext of one event.
type ContextSet map[Context]bool

func (s ContextSet) Has(c Context) bool { return s[c] }

// ParseContexts decodes the operationContext value, a JSON array of strings.
// Unknown labels are logged and skipped; a malformed value yields an empty set.
func ParseContexts(value string) ContextSet {
	set := make(ContextSet)
	if value == "" {
		return set
	}
	var labels []string
	if err := json.Unmarshal([]byte(value), &labels); err != nil {
		return set
	}
	for _, label := range labels {
		c := Context(label)
		if !knownContexts[c] {
			log.Printf("unknown operation context %q, skipping", label)
			continue
		}
		set[c] = true
	}
	return set
}

// Envelope is one normalized provider notification about a running call.
type Envelope struct {
	Kind            Kind
	WireType        string
	ConnectionID    string
	ServerCallID    string
	RecognitionType string
	ChoiceLabel     string
	SubCode         int
	ResultMessage   string
	Contexts        ContextSet
}

type wireEnvelope struct {
	Type string `json:"type"`
	Data struct {
		CallConnectionID string `json:"callConnectionId"`
		ServerCallID     string `json:"serverCallId"`
		OperationContext string `json:"operationContext"`
		RecognitionType  string `json:"recognitionType"`
		ChoiceResult     struct {
			Label string `json:"label"`
		} `json:"choiceResult"`
		ResultInformation struct {
			SubCode int    `json:"subCode"`
			Message string `json:"message"`
		} `json:"resultInformation"`
	} `json:"data"`
}

// ParseEnvelope decodes one provider event. An unknown event type is not an
// error; the envelope comes back with KindUnrecognized.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, fmt.Errorf("invalid event envelope: %w", err)
	}

	kind, ok := wireKinds[w.Type]
	if !ok {
		kind = KindUnrecognized
	}

	return Envelope{
		Kind:            kind,
		WireType:        w.Type,
		ConnectionID:    w.Data.CallConnectionID,
		ServerCallID:    w.Data.ServerCallID,
		RecognitionType: w.Data.RecognitionType,
		ChoiceLabel:     w.Data.ChoiceResult.Label,
		SubCode:         w.Data.ResultInformation.SubCode,
		ResultMessage:   w.Data.ResultInformation.Message,
		Contexts:        ParseContexts(w.Data.OperationContext),
	}, nil
}
