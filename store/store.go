package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrInvalidPath = errors.New("invalid store path")
	ErrNotFound    = errors.New("document not found")
	ErrConflict    = errors.New("store transaction conflict")
)

// Backend persists JSON documents addressed by "collection/id".
type Backend interface {
	// Load returns ErrNotFound when the document does not exist.
	Load(ctx context.Context, key string) ([]byte, error)
	// List returns every document in a collection keyed by id.
	List(ctx context.Context, collection string) (map[string][]byte, error)
	// Update atomically replaces the document with fn(current). current is nil
	// for a missing document; a nil result deletes it. fn may be retried.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	Close() error
}

// ChangeFeed is implemented by backends shared between processes. Changes
// yields document keys written by other instances.
type ChangeFeed interface {
	Changes(ctx context.Context) (<-chan string, error)
}

// Snapshot is the value observed at a path at one point in time.
type Snapshot struct {
	Path   string
	Exists bool
	Value  json.RawMessage
}

// Decode unmarshals the snapshot value into v. It is a no-op for a missing node.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return nil
	}
	return json.Unmarshal(s.Value, v)
}

// Store exposes path-scoped create, read, write, subscribe and remove
// primitives over a Backend, and fans changes out to subscribers.
type Store struct {
	backend Backend

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
}

func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		subs:    make(map[uint64]*subscription),
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get reads the node at path once.
func (s *Store) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	return s.read(ctx, segs)
}

func (s *Store) read(ctx context.Context, segs []string) (Snapshot, error) {
	path := JoinPath(segs...)
	var value any

	if len(segs) == 1 {
		docs, err := s.backend.List(ctx, segs[0])
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to list %s: %w", path, err)
		}
		coll := make(map[string]any, len(docs))
		for id, data := range docs {
			doc, err := decodeDoc(data)
			if err != nil {
				log.Printf("store: skipping %s/%s: %v", segs[0], id, err)
				continue
			}
			if doc != nil {
				coll[id] = doc
			}
		}
		value = coll
	} else {
		data, err := s.backend.Load(ctx, docKey(segs))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := decodeDoc(data)
		if err != nil {
			return Snapshot{}, err
		}
		value = getAt(doc, segs[2:])
	}

	if isEmpty(value) {
		return Snapshot{Path: path}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Exists: true, Value: raw}, nil
}

// Set overwrites the node at path. A nil value removes it.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	_, err := s.Transact(ctx, path, func(Snapshot) (any, error) {
		return value, nil
	})
	return err
}

// Remove deletes the subtree at path.
func (s *Store) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

// NewKey returns a time-ordered key suitable for a new child node.
func NewKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return id.String(), nil
}

// Push stores value under a new time-ordered child key of path and returns the key.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, JoinPath(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Transact atomically replaces the node at path with fn(current). Returning
// an error from fn aborts without writing. fn may run more than once when a
// concurrent writer wins, so it must not have side effects beyond assignment.
func (s *Store) Transact(ctx context.Context, path string, fn func(current Snapshot) (any, error)) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(segs) < 2 {
		return Snapshot{}, fmt.Errorf("%w: cannot write a whole collection", ErrInvalidPath)
	}
	path = JoinPath(segs...)
	rel := segs[2:]

	var result any
	err = s.backend.Update(ctx, docKey(segs), func(current []byte) ([]byte, error) {
		doc, err := decodeDoc(current)
		if err != nil {
			return nil, err
		}
		snap := Snapshot{Path: path}
		if node := getAt(doc, rel); !isEmpty(node) {
			raw, err := json.Marshal(node)
			if err != nil {
				return nil, err
			}
			snap.Exists = true
			snap.Value = raw
		}

		next, err := fn(snap)
		if err != nil {
			return nil, err
		}
		tree, err := toTree(next)
		if err != nil {
			return nil, err
		}
		result = tree
		return encodeDoc(setAt(doc, rel, tree))
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.notify(segs)

	if isEmpty(result) {
		return Snapshot{Path: path}, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Exists: true, Value: raw}, nil
}

// Run relays changes made by other instances to local subscribers until ctx
// is done. It returns immediately for backends without a change feed.
func (s *Store) Run(ctx context.Context) {
	feed, ok := s.backend.(ChangeFeed)
	if !ok {
		return
	}
	changes, err := feed.Changes(ctx)
	if err != nil {
		log.Printf("store: change feed unavailable: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-changes:
			if !ok {
				return
			}
			segs, err := splitPath(key)
			if err != nil {
				continue
			}
			s.notify(segs)
		}
	}
}

// Subscribe calls fn with the current value at path and again every time it
// changes, until the returned function is called or ctx is done. Bursts of
// writes are coalesced: fn always sees the latest value, not every
// intermediate one. Callbacks for one subscription never run concurrently.
func (s *Store) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		segs:   segs,
		fn:     fn,
		signal: make(chan struct{}, 1),
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	s.mu.Unlock()

	select {
	case sub.signal <- struct{}{}:
	default:
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.deliver(ctx, sub)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			cancel()
			<-done
		})
	}, nil
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

type subscription struct {
	segs   []string
	fn     func(Snapshot)
	signal chan struct{}

	delivered bool
	last      Snapshot
}

func (s *Store) notify(changed []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !overlaps(sub.segs, changed) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (s *Store) deliver(ctx context.Context, sub *subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.signal:
		}

		snap, err := s.read(ctx, sub.segs)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("store: subscription read %s failed: %v", JoinPath(sub.segs...), err)
			}
			continue
		}
		if sub.delivered && snap.Exists == sub.last.Exists && bytes.Equal(snap.Value, sub.last.Value) {
			continue
		}
		sub.delivered = true
		sub.last = snap
		if ctx.Err() != nil {
			return
		}
		sub.fn(snap)
	}
}
