package events

import (
	"context"
	"fmt"
	"log"

	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/provider"
	"github.com/antoniostano/switchboard/internal/store"
)

// DTMF tones offered for IVR choices, in order.
var ivrTones = []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// PostEnqueuer schedules the end-of-call analytics workflow for a call.
type PostEnqueuer func(ctx context.Context, callID string) error

// Dispatcher routes authorized provider events to their domain handlers.
//
// After any handler the call is persisted exactly once, regardless of how many
// fields changed. Handlers do not take locks: two events for the same call may
// race on persistence with last write winning, which is an accepted tradeoff.
type Dispatcher struct {
	store          store.Store
	actions        provider.Actions
	prompts        Prompts
	enqueuePost    PostEnqueuer
	metrics        *observability.Metrics
	availableLangs []string
	retryMax       int
}

func NewDispatcher(
	s store.Store,
	actions provider.Actions,
	prompts Prompts,
	enqueuePost PostEnqueuer,
	metrics *observability.Metrics,
	availableLangs []string,
	retryMax int,
) *Dispatcher {
	if prompts == nil {
		prompts = StaticPrompts{}
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	return &Dispatcher{
		store:          s,
		actions:        actions,
		prompts:        prompts,
		enqueuePost:    enqueuePost,
		metrics:        metrics,
		availableLangs: availableLangs,
		retryMax:       retryMax,
	}
}

// Dispatch applies one event to its call and persists the result. The switch
// over Kind is exhaustive; unrecognized events are logged and ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, c *call.Call, env Envelope) error {
	if env.ConnectionID != "" {
		c.ConnectionID = env.ConnectionID
	}
	d.metrics.CallEvents.WithLabelValues(string(env.Kind)).Inc()

	var err error
	switch env.Kind {
	case KindConnected:
		err = d.onConnected(ctx, c)
	case KindDisconnected:
		err = d.onDisconnected(ctx, c)
	case KindRecognizeCompleted:
		if env.RecognitionType == "choices" {
			err = d.onIVRRecognized(ctx, c, env.ChoiceLabel)
		}
	case KindRecognizeFailed:
		err = d.onRecognizeFailed(ctx, c, env.Contexts)
	case KindPlayCompleted:
		err = d.onPlayCompleted(ctx, c, env.Contexts)
	case KindPlayFailed:
		d.onPlayFailed(c, env.SubCode)
	case KindTransferAccepted:
		log.Printf("call %s: transfer accepted", c.ID)
	case KindTransferFailed:
		err = d.onTransferFailed(ctx, c)
	case KindUnrecognized:
		log.Printf("call %s: event %q not supported, ignoring", c.ID, env.WireType)
	}
	if err != nil {
		return err
	}

	// One write per event, however many fields changed.
	if err := d.store.Save(ctx, c); err != nil {
		return fmt.Errorf("persist call %s: %w", c.ID, err)
	}
	return nil
}

func (d *Dispatcher) onConnected(ctx context.Context, c *call.Call) error {
	log.Printf("call %s: connected, confirming language", c.ID)
	c.RecognitionRetry = 0
	c.Append(call.Message{Persona: call.PersonaHuman, Action: call.ActionCall})
	return d.askLanguage(ctx, c)
}

func (d *Dispatcher) onDisconnected(ctx context.Context, c *call.Call) error {
	log.Printf("call %s: disconnected", c.ID)
	return d.hangup(ctx, c)
}

func (d *Dispatcher) onIVRRecognized(ctx context.Context, c *call.Call, label string) error {
	log.Printf("call %s: IVR recognized %q", c.ID, label)
	c.RecognitionRetry = 0

	lang := c.Initiate.Lang
	for _, available := range d.availableLangs {
		if available == label {
			lang = label
			break
		}
	}
	c.Lang = lang

	greeting := d.prompts.Hello(c)
	style := call.StyleNone
	if len(c.Messages) > 1 {
		// Returning caller, same conversation.
		greeting = d.prompts.WelcomeBack(c)
		style = call.StyleCheerful
	}
	if err := d.actions.PlayText(ctx, c, greeting, style, nil); err != nil {
		return fmt.Errorf("greet caller: %w", err)
	}
	// The greeting is part of the conversation the LLM sees later.
	c.Append(call.Message{Persona: call.PersonaAssistant, Style: style, Content: greeting})
	if err := d.actions.StartMediaStreaming(ctx, c); err != nil {
		return fmt.Errorf("start media streaming: %w", err)
	}
	return nil
}

func (d *Dispatcher) onRecognizeFailed(ctx context.Context, c *call.Call, contexts ContextSet) error {
	if contexts.Has(ContextIVRLangSelect) {
		if c.RecognitionRetry < d.retryMax {
			c.RecognitionRetry++
			log.Printf("call %s: recognition timeout, retrying language selection (%d/%d)", c.ID, c.RecognitionRetry, d.retryMax)
			return d.askLanguage(ctx, c)
		}
		log.Printf("call %s: recognition retries exhausted, ending call", c.ID)
		return d.playGoodbye(ctx, c)
	}

	if c.RecognitionRetry >= d.retryMax {
		log.Printf("call %s: voice retries exhausted, ending call", c.ID)
		return d.playGoodbye(ctx, c)
	}
	return nil
}

func (d *Dispatcher) onPlayCompleted(ctx context.Context, c *call.Call, contexts ContextSet) error {
	if len(contexts) == 0 {
		return nil
	}

	if contexts.Has(ContextGoodbye) || contexts.Has(ContextTransferFailed) {
		log.Printf("call %s: final prompt played, ending call", c.ID)
		return d.hangup(ctx, c)
	}

	if contexts.Has(ContextConnectAgent) {
		log.Printf("call %s: transferring to agent", c.ID)
		if err := d.actions.Transfer(ctx, c, c.Initiate.AgentPhoneNumber); err != nil {
			return fmt.Errorf("transfer to agent: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) onPlayFailed(c *call.Call, subCode int) {
	switch subCode {
	case 8535:
		log.Printf("call %s: media play failed, file format is invalid", c.ID)
	case 8536:
		log.Printf("call %s: media play failed, file could not be downloaded", c.ID)
	case 8565:
		log.Printf("call %s: media play failed, speech service unreachable", c.ID)
	case 9999:
		log.Printf("call %s: media play failed, provider internal error", c.ID)
	default:
		log.Printf("call %s: media play failed, unknown error code %d", c.ID, subCode)
	}
}

func (d *Dispatcher) onTransferFailed(ctx context.Context, c *call.Call) error {
	log.Printf("call %s: transfer failed", c.ID)
	text := d.prompts.TransferFailure(c)
	err := d.actions.PlayText(ctx, c, text, call.StyleNone, []string{string(ContextTransferFailed)})
	if err != nil {
		return fmt.Errorf("play transfer failure: %w", err)
	}
	c.Append(call.Message{Persona: call.PersonaAssistant, Content: text})
	return nil
}

// askLanguage offers the language IVR menu, or short-circuits when only one
// language is configured.
func (d *Dispatcher) askLanguage(ctx context.Context, c *call.Call) error {
	if len(d.availableLangs) <= 1 {
		label := c.Initiate.Lang
		if len(d.availableLangs) == 1 {
			label = d.availableLangs[0]
		}
		return d.onIVRRecognized(ctx, c, label)
	}

	choices := make([]provider.IVRChoice, 0, len(d.availableLangs))
	for i, lang := range d.availableLangs {
		if i >= len(ivrTones) {
			break
		}
		choices = append(choices, provider.IVRChoice{Label: lang, Tone: ivrTones[i]})
	}
	err := d.actions.RecognizeIVR(ctx, c, d.prompts.IVRLanguage(c), choices, []string{string(ContextIVRLangSelect)})
	if err != nil {
		return fmt.Errorf("recognize language: %w", err)
	}
	return nil
}

// playGoodbye does not store the prompt; a timeout notice in the transcript
// skews the LLM on later turns.
func (d *Dispatcher) playGoodbye(ctx context.Context, c *call.Call) error {
	err := d.actions.PlayText(ctx, c, d.prompts.Goodbye(c), call.StyleNone, []string{string(ContextGoodbye)})
	if err != nil {
		return fmt.Errorf("play goodbye: %w", err)
	}
	return nil
}

func (d *Dispatcher) hangup(ctx context.Context, c *call.Call) error {
	if err := d.actions.Hangup(ctx, c); err != nil {
		return fmt.Errorf("hangup: %w", err)
	}
	c.Append(call.Message{Persona: call.PersonaHuman, Action: call.ActionHangup})
	if d.enqueuePost != nil {
		if err := d.enqueuePost(ctx, c.ID); err != nil {
			return fmt.Errorf("enqueue post-processing: %w", err)
		}
	}
	return nil
}
