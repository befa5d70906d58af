package store

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Memory is the in-process store. It is safe for concurrent use; clients
// talk to it through connections obtained from Connect.
type Memory struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[*subscription]struct{}
	conns  map[string]*Conn
	lastTS int64

	clock  func() time.Time
	logger zerolog.Logger
}

// Option configures a Memory store
type Option func(*Memory)

// WithClock replaces the clock used for server timestamps
func WithClock(clock func() time.Time) Option {
	return func(m *Memory) { m.clock = clock }
}

// WithLogger sets the store logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Memory) { m.logger = logger }
}

// NewMemory creates an empty store
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		root:   make(map[string]any),
		subs:   make(map[*subscription]struct{}),
		conns:  make(map[string]*Conn),
		clock:  time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens a new client connection
func (m *Memory) Connect() *Conn {
	c := &Conn{
		id:           uuid.NewString(),
		m:            m,
		onDisconnect: make(map[string]struct{}),
		subs:         make(map[*subscription]struct{}),
	}

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()

	m.logger.Debug().Str("conn", c.id).Msg("store connection opened")
	return c
}

// ConnCount returns the number of open connections
func (m *Memory) ConnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// now returns a strictly increasing millisecond timestamp. Must be called
// with m.mu held.
func (m *Memory) now() int64 {
	ts := m.clock().UnixMilli()
	if ts <= m.lastTS {
		ts = m.lastTS + 1
	}
	m.lastTS = ts
	return ts
}

func (m *Memory) read(parts []string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(parts)
}

// snapshot must be called with m.mu held
func (m *Memory) snapshot(parts []string) Snapshot {
	v, ok := lookup(any(m.root), parts)
	key := ""
	if len(parts) > 0 {
		key = parts[len(parts)-1]
	}
	return Snapshot{Key: key, Value: clone(v), Exists: ok}
}

// apply writes a batch of values and notifies affected subscribers.
// Must be called with m.mu held.
func (m *Memory) apply(writes map[string]any) error {
	resolved := make(map[string]any, len(writes))
	for path, value := range writes {
		v, err := normalize(value, m.now)
		if err != nil {
			return err
		}
		resolved[path] = v
	}

	// Shorter paths first so a nested write lands inside its parent
	paths := make([]string, 0, len(resolved))
	for path := range resolved {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return len(splitPath(paths[i])) < len(splitPath(paths[j]))
	})

	changed := make([][]string, 0, len(paths))
	for _, path := range paths {
		parts := splitPath(path)
		m.root = set(m.root, parts, resolved[path])
		changed = append(changed, parts)
	}
	m.publish(changed)
	return nil
}

// publish must be called with m.mu held
func (m *Memory) publish(changed [][]string) {
	for sub := range m.subs {
		hit := false
		for _, parts := range changed {
			if related(sub.parts, parts) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}

		snap := m.snapshot(sub.parts)
		if snap.Exists == sub.lastExists && reflect.DeepEqual(snap.Value, sub.last) {
			continue
		}
		sub.last, sub.lastExists = clone(snap.Value), snap.Exists
		sub.push(snap)
	}
}

func (m *Memory) transact(parts []string, fn TxFunc) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.snapshot(parts))
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.apply(map[string]any{joinPath(parts): next}); err != nil {
		return Snapshot{}, err
	}
	return m.snapshot(parts), nil
}

func (m *Memory) query(parts []string, field string, value any, limit int) ([]Snapshot, error) {
	want, err := normalize(value, func() int64 { return 0 })
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, _ := lookup(any(m.root), parts)
	children, _ := parent.(map[string]any)

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Snapshot, 0)
	for _, k := range keys {
		child, ok := children[k].(map[string]any)
		if !ok || !reflect.DeepEqual(child[field], want) {
			continue
		}
		out = append(out, Snapshot{Key: k, Value: clone(child), Exists: true})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) subscribe(parts []string, fn func(Snapshot)) *subscription {
	sub := &subscription{
		path:   joinPath(parts),
		parts:  parts,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	snap := m.snapshot(parts)
	sub.last, sub.lastExists = clone(snap.Value), snap.Exists
	m.subs[sub] = struct{}{}
	sub.push(snap)
	m.mu.Unlock()

	go sub.run()
	return sub
}

func (m *Memory) unsubscribe(sub *subscription) {
	m.mu.Lock()
	delete(m.subs, sub)
	m.mu.Unlock()
	sub.stop()
}

// disconnect runs a connection's on-disconnect removals as one batch
func (m *Memory) disconnect(c *Conn, removals []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conns, c.id)
	if len(removals) == 0 {
		return
	}

	writes := make(map[string]any, len(removals))
	for _, path := range removals {
		writes[path] = nil
	}
	if err := m.apply(writes); err != nil {
		m.logger.Error().Err(err).Str("conn", c.id).Msg("on-disconnect cleanup failed")
		return
	}
	m.logger.Debug().Str("conn", c.id).Strs("paths", removals).Msg("on-disconnect cleanup")
}

// subscription delivers snapshots on its own goroutine, keeping only the
// latest undelivered one
type subscription struct {
	path  string
	parts []string
	fn    func(Snapshot)

	// guarded by Memory.mu
	last       any
	lastExists bool

	mu      sync.Mutex
	pending *Snapshot
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Path() string {
	return s.path
}

func (s *subscription) push(snap Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()

		if snap == nil {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		s.fn(*snap)
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}
