package store

import (
	"context"
	"errors"

	"github.com/antoniostano/switchboard/internal/call"
)

var ErrNotFound = errors.New("call not found")

// Store persists and retrieves call state. Callers load a call, mutate the
// in-memory copy and explicitly Save it back; the store is not a write-through
// cache and offers no optimistic locking.
type Store interface {
	Get(ctx context.Context, id string) (*call.Call, error)
	// SearchOneByPhone returns the most recently updated call for a phone
	// number.
	SearchOneByPhone(ctx context.Context, phoneNumber string) (*call.Call, error)
	SearchAllByPhone(ctx context.Context, phoneNumber string, limit int) ([]*call.Call, error)
	Save(ctx context.Context, c *call.Call) error
	Close() error
}
