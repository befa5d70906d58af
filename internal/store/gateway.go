// Package store is the realtime key-value tree every session synchronizes
// through. Values are JSON-shaped trees addressed by slash-separated paths;
// subscribers receive the current value of their path immediately and again
// after every change.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by a connection after Close
	ErrClosed = errors.New("store connection closed")

	// ErrAbort is for a TxFunc that abandons a transaction without a more
	// specific cause
	ErrAbort = errors.New("transaction aborted")
)

// ServerValueKey marks a placeholder object such as {".sv":"timestamp"}
// that the store replaces with its own value on write
const ServerValueKey = ".sv"

// Snapshot is an immutable copy of the value at a path
type Snapshot struct {
	Key    string
	Value  any
	Exists bool
}

// Decode unmarshals the snapshot value into dst
func (s Snapshot) Decode(dst any) error {
	if !s.Exists {
		return nil
	}
	data, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", s.Key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode snapshot %q: %w", s.Key, err)
	}
	return nil
}

// Child returns the snapshot of a direct or nested child
func (s Snapshot) Child(path string) Snapshot {
	parts := splitPath(path)
	v, ok := lookup(s.Value, parts)
	key := s.Key
	if len(parts) > 0 {
		key = parts[len(parts)-1]
	}
	return Snapshot{Key: key, Value: v, Exists: ok}
}

// TxFunc computes the new value of a path from its current snapshot.
// Returning a nil value removes the path; returning an error leaves the
// store untouched. It runs while the store is locked and must not call
// back into the store.
type TxFunc func(current Snapshot) (any, error)

// Subscription identifies one Subscribe call
type Subscription interface {
	Path() string
}

// Gateway is a connection to the store. Each client session holds its own
// connection; on-disconnect registrations belong to the connection that
// made them and fire when it closes.
type Gateway interface {
	Read(ctx context.Context, path string) (Snapshot, error)
	Write(ctx context.Context, path string, value any) error

	// Update writes several relative paths under path in one atomic step
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error

	// Transact runs fn against the current value and commits its result
	// atomically. The committed snapshot is returned.
	Transact(ctx context.Context, path string, fn TxFunc) (Snapshot, error)

	// Query returns children of path whose field equals value, in key
	// order, at most limit of them (limit <= 0 means no limit)
	Query(ctx context.Context, path, field string, value any, limit int) ([]Snapshot, error)

	// Subscribe delivers the current value at once and then every change.
	// Notifications for one subscription arrive in order on their own
	// goroutine; intermediate values may be coalesced.
	Subscribe(path string, fn func(Snapshot)) (Subscription, error)
	Unsubscribe(sub Subscription)

	OnDisconnectRemove(ctx context.Context, path string) error
	CancelOnDisconnect(ctx context.Context, path string) error
}
