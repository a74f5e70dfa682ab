package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/provider"
	"github.com/antoniostano/switchboard/internal/registry"
	"github.com/antoniostano/switchboard/internal/store"
)

// Provider notification types carried on the intake queues.
const (
	eventTypeIncomingCall = "Microsoft.Communication.IncomingCall"
	eventTypeSMSReceived  = "Microsoft.Communication.SMSReceived"
)

// Analytics runs the end-of-call intelligence workflow. It lives outside the
// orchestration core.
type Analytics interface {
	OnEndCall(ctx context.Context, c *call.Call) error
}

// Names binds the three consumer loops to their queues.
type Names struct {
	Call string
	SMS  string
	Post string
}

// Workers owns the three long-running consumer loops. Handler failures are
// logged and never terminate a loop; handlers are safe to run more than once
// for the same logical event.
type Workers struct {
	transport Transport
	names     Names
	registry  *registry.Registry
	store     store.Store
	actions   provider.Actions
	analytics Analytics
	metrics   *observability.Metrics
}

func NewWorkers(
	transport Transport,
	names Names,
	reg *registry.Registry,
	s store.Store,
	actions provider.Actions,
	analytics Analytics,
	metrics *observability.Metrics,
) *Workers {
	return &Workers{
		transport: transport,
		names:     names,
		registry:  reg,
		store:     s,
		actions:   actions,
		analytics: analytics,
		metrics:   metrics,
	}
}

// Start launches the three consumer loops. They run until ctx is cancelled;
// in-flight handlers are not guaranteed to finish.
func (w *Workers) Start(ctx context.Context) {
	go w.consume(ctx, w.names.Call, w.HandleCallMessage)
	go w.consume(ctx, w.names.SMS, w.HandleSMSMessage)
	go w.consume(ctx, w.names.Post, w.HandlePostMessage)
}

func (w *Workers) consume(ctx context.Context, queue string, handle func(context.Context, string) error) {
	log.Printf("queue %s: consumer started", queue)
	for {
		if ctx.Err() != nil {
			log.Printf("queue %s: consumer stopped", queue)
			return
		}

		payload, err := w.transport.Receive(ctx, queue)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("queue %s: consumer stopped", queue)
				return
			}
			log.Printf("queue %s: receive failed: %v", queue, err)
			continue
		}

		if err := handle(ctx, payload); err != nil {
			// Redelivery is the transport's job; the loop must survive.
			log.Printf("queue %s: handler failed: %v", queue, err)
			w.metrics.QueueMessages.WithLabelValues(queue, "failed").Inc()
			continue
		}
		w.metrics.QueueMessages.WithLabelValues(queue, "handled").Inc()
	}
}

type gridEvent struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

type incomingCallData struct {
	IncomingCallContext string `json:"incomingCallContext"`
	From                struct {
		PhoneNumber struct {
			Value string `json:"value"`
		} `json:"phoneNumber"`
	} `json:"from"`
}

type smsData struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

// HandleCallMessage answers an inbound-call notification: resolve or create
// the session, then hand the provider the callback and stream URLs. Other
// notification types are logged and dropped.
func (w *Workers) HandleCallMessage(ctx context.Context, payload string) error {
	var event gridEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("decode call event: %w", err)
	}
	if event.EventType != eventTypeIncomingCall {
		log.Printf("call intake: event %q not supported, dropping", event.EventType)
		return nil
	}

	var data incomingCallData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode incoming call data: %w", err)
	}
	phoneNumber := data.From.PhoneNumber.Value
	if phoneNumber == "" {
		return fmt.Errorf("incoming call without caller phone number")
	}

	callbackURL, streamURL, c, err := w.registry.ResolveOrCreate(ctx, phoneNumber, nil)
	if err != nil {
		return err
	}

	connectionID, err := w.actions.AnswerCall(ctx, data.IncomingCallContext, callbackURL, streamURL)
	if err != nil {
		return fmt.Errorf("answer call from %s: %w", phoneNumber, err)
	}
	log.Printf("answered call from %s on session %s (%s)", phoneNumber, c.ID, connectionID)
	return nil
}

// HandleSMSMessage appends an inbound SMS to the caller's existing session.
// A sender with no prior call is logged and dropped; the sender cannot act on
// a failure anyway.
func (w *Workers) HandleSMSMessage(ctx context.Context, payload string) error {
	var event gridEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("decode sms event: %w", err)
	}
	if event.EventType != eventTypeSMSReceived {
		log.Printf("sms intake: event %q not supported, dropping", event.EventType)
		return nil
	}

	var data smsData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode sms data: %w", err)
	}

	c, err := w.store.SearchOneByPhone(ctx, data.From)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("sms intake: no session for %s, dropping", data.From)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("sms received on session %s", c.ID)
	c.Append(call.Message{
		Persona: call.PersonaHuman,
		Action:  call.ActionSMS,
		Content: data.Message,
	})
	return w.store.Save(ctx, c)
}

// HandlePostMessage reloads a session by its bare identifier and runs the
// end-of-call analytics workflow. Missing sessions are logged and dropped.
func (w *Workers) HandlePostMessage(ctx context.Context, payload string) error {
	c, err := w.store.Get(ctx, payload)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("post-processing: session %s not found, dropping", payload)
		return nil
	}
	if err != nil {
		return err
	}

	if c.EndedWithoutInteraction() {
		log.Printf("post-processing: session %s ended before any interaction, skipping", c.ID)
		return nil
	}
	if w.analytics == nil {
		return nil
	}
	return w.analytics.OnEndCall(ctx, c)
}

// EnqueuePost schedules end-of-call processing for a session.
func (w *Workers) EnqueuePost(ctx context.Context, callID string) error {
	return w.transport.Send(ctx, w.names.Post, callID)
}
