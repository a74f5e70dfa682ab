package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/store"
)

const (
	callbackTpl = "https://bot.example.com/communicationservices/callback/{call_id}/{secret}"
	streamTpl   = "wss://bot.example.com/communicationservices/wss/{call_id}/{secret}"
)

func newTestRegistry() (*Registry, *store.InMemoryStore) {
	s := store.NewInMemoryStore()
	return New(s, callbackTpl, streamTpl, call.Initiate{BotName: "switchboard", Lang: "en-US"}), s
}

func TestResolveOrCreateReusesCall(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, _, first, err := r.ResolveOrCreate(ctx, "+15551234567", nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	_, _, second, err := r.ResolveOrCreate(ctx, "+15551234567", nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same phone without override should reuse call: %q vs %q", first.ID, second.ID)
	}
}

func TestResolveOrCreateNewOnDifferentInitiate(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, _, first, err := r.ResolveOrCreate(ctx, "+15551234567", nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	first.Append(call.Message{Persona: call.PersonaHuman, Content: "hello"})

	override := call.Initiate{BotName: "other-bot", Lang: "fr-FR"}
	_, _, second, err := r.ResolveOrCreate(ctx, "+15551234567", &override)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("different initiate should create a new call")
	}
	if second.CallbackSecret == first.CallbackSecret {
		t.Fatalf("new call should carry a fresh secret")
	}
	if len(second.Messages) != 0 {
		t.Fatalf("new call transcript should be empty, got %d messages", len(second.Messages))
	}
}

func TestResolveOrCreateURLs(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	callbackURL, streamURL, c, err := r.ResolveOrCreate(ctx, "+15551234567", nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	wantCallback := "https://bot.example.com/communicationservices/callback/" + c.ID + "/" + c.CallbackSecret
	if callbackURL != wantCallback {
		t.Fatalf("callback URL = %q, want %q", callbackURL, wantCallback)
	}
	if !strings.HasPrefix(streamURL, "wss://") {
		t.Fatalf("stream URL should be wss, got %q", streamURL)
	}
	if !strings.Contains(streamURL, c.ID) || !strings.Contains(streamURL, c.CallbackSecret) {
		t.Fatalf("stream URL missing call id or secret: %q", streamURL)
	}
}
