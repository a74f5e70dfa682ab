// Package registry resolves phone numbers to call sessions and builds the
// callback and media-stream URLs handed to the telephony provider.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/store"
)

type Registry struct {
	store           store.Store
	callbackTpl     string
	streamTpl       string
	defaultInitiate call.Initiate
}

func New(s store.Store, callbackTpl, streamTpl string, defaultInitiate call.Initiate) *Registry {
	return &Registry{
		store:           s,
		callbackTpl:     callbackTpl,
		streamTpl:       streamTpl,
		defaultInitiate: defaultInitiate,
	}
}

// ResolveOrCreate returns the call for a phone number together with its
// callback and stream URLs.
//
// If the caller has already called, the same call is reused so the
// conversation history carries over. A brand-new call (fresh ID, fresh secret,
// empty transcript) is created when no call exists or when the supplied
// initiate configuration differs from the stored one. Only creation persists;
// every later mutation must be saved by its own handler.
func (r *Registry) ResolveOrCreate(ctx context.Context, phoneNumber string, initiate *call.Initiate) (callbackURL, streamURL string, c *call.Call, err error) {
	c, err = r.store.SearchOneByPhone(ctx, phoneNumber)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", "", nil, fmt.Errorf("resolve call: %w", err)
	}

	if c == nil || (initiate != nil && c.Initiate != *initiate) {
		cfg := r.defaultInitiate
		if initiate != nil {
			cfg = *initiate
		}
		c = call.New(phoneNumber, cfg)
		if err := r.store.Save(ctx, c); err != nil {
			return "", "", nil, fmt.Errorf("create call: %w", err)
		}
	}

	return expand(r.callbackTpl, c), expand(r.streamTpl, c), c, nil
}

func expand(tpl string, c *call.Call) string {
	out := strings.ReplaceAll(tpl, "{call_id}", c.ID)
	return strings.ReplaceAll(out, "{secret}", c.CallbackSecret)
}
