package store

import (
	"context"
	"sort"
	"sync"
)

// Conn is one client's connection to a Memory store
type Conn struct {
	id string
	m  *Memory

	mu           sync.Mutex
	closed       bool
	onDisconnect map[string]struct{}
	subs         map[*subscription]struct{}
}

var _ Gateway = (*Conn)(nil)

// ID returns the connection id
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Read returns the value at path
func (c *Conn) Read(ctx context.Context, path string) (Snapshot, error) {
	if err := c.check(ctx); err != nil {
		return Snapshot{}, err
	}
	return c.m.read(splitPath(path)), nil
}

// Write replaces the value at path; a nil value removes it
func (c *Conn) Write(ctx context.Context, path string, value any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.apply(map[string]any{path: value})
}

// Update writes each field, a path relative to path, in one step
func (c *Conn) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	base := splitPath(path)
	writes := make(map[string]any, len(fields))
	for rel, value := range fields {
		writes[joinPath(append(append([]string(nil), base...), splitPath(rel)...))] = value
	}

	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.apply(writes)
}

// Remove deletes the value at path
func (c *Conn) Remove(ctx context.Context, path string) error {
	return c.Write(ctx, path, nil)
}

// Transact atomically replaces the value at path with fn's result
func (c *Conn) Transact(ctx context.Context, path string, fn TxFunc) (Snapshot, error) {
	if err := c.check(ctx); err != nil {
		return Snapshot{}, err
	}
	return c.m.transact(splitPath(path), fn)
}

// Query lists children of path whose field equals value
func (c *Conn) Query(ctx context.Context, path, field string, value any, limit int) ([]Snapshot, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.m.query(splitPath(path), field, value, limit)
}

// Subscribe watches path until Unsubscribe or Close
func (c *Conn) Subscribe(path string, fn func(Snapshot)) (Subscription, error) {
	if err := c.check(context.Background()); err != nil {
		return nil, err
	}
	sub := c.m.subscribe(splitPath(path), fn)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.m.unsubscribe(sub)
		return nil, ErrClosed
	}
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return sub, nil
}

// Unsubscribe stops a subscription. Nil and foreign subscriptions are ignored.
func (c *Conn) Unsubscribe(s Subscription) {
	sub, ok := s.(*subscription)
	if !ok || sub == nil {
		return
	}

	c.mu.Lock()
	_, mine := c.subs[sub]
	delete(c.subs, sub)
	c.mu.Unlock()

	if mine {
		c.m.unsubscribe(sub)
	}
}

// OnDisconnectRemove arranges for path to be removed when the connection
// closes
func (c *Conn) OnDisconnectRemove(ctx context.Context, path string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect[joinPath(splitPath(path))] = struct{}{}
	return nil
}

// CancelOnDisconnect drops a registration made by OnDisconnectRemove
func (c *Conn) CancelOnDisconnect(ctx context.Context, path string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.onDisconnect, joinPath(splitPath(path)))
	return nil
}

// Close stops every subscription and runs the on-disconnect removals.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	removals := make([]string, 0, len(c.onDisconnect))
	for path := range c.onDisconnect {
		removals = append(removals, path)
	}
	c.onDisconnect = nil
	c.mu.Unlock()

	for sub := range subs {
		c.m.unsubscribe(sub)
	}
	sort.Strings(removals)
	c.m.disconnect(c, removals)
	return nil
}
