package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/store"
)

var ErrNotFound = errors.New("call not found")

// AuthorizeCall loads the call identified by id and requires the per-call
// secret from the URL to match its callback secret. The secret travels in the
// path because webhook providers cannot attach custom headers.
func AuthorizeCall(ctx context.Context, s store.Store, id, secret string) (*call.Call, error) {
	c, err := s.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load call %s: %w", id, err)
	}
	if subtle.ConstantTimeCompare([]byte(c.CallbackSecret), []byte(secret)) != 1 {
		return nil, fmt.Errorf("%w: secret does not match", ErrUnauthorized)
	}
	return c, nil
}
