package store

import (
	"encoding/json"
	"sync"
)

// Snapshot is one full-subtree view pushed to a subscription. Value is
// the assembled subtree (nested map[string]any with JSON-typed leaves)
// or nil when nothing exists under the path.
type Snapshot struct {
	Path  string
	Value any
}

// Subscription is a standing watch on a path. Every change at or below
// the path (or above it, when an ancestor is replaced wholesale)
// delivers a fresh snapshot of the whole subtree on C. Cancel releases
// the watch and closes the channel; it is safe to call more than once.
type Subscription struct {
	path   string
	ch     chan Snapshot
	once   sync.Once
	cancel func(*Subscription)
}

// C returns the snapshot channel
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Path returns the subscribed path
func (s *Subscription) Path() string {
	return s.path
}

// Cancel releases the subscription
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel(s)
	})
}

// Store is the hierarchical record store: slash-separated paths, JSON
// values, and push-based subtree subscriptions
type Store interface {
	// Get returns the value at path: the leaf value if path is a leaf,
	// otherwise the assembled subtree. Returns nil when nothing exists.
	Get(path string) (any, error)

	// Put replaces the subtree at path with v. Writing an empty map
	// clears the subtree.
	Put(path string, v any) error

	// Update shallow-merges fields into the record at path, replacing
	// each named child and leaving siblings untouched.
	Update(path string, fields map[string]any) error

	// Delete removes the subtree at path
	Delete(path string) error

	// Subscribe opens a standing watch on path. The current snapshot is
	// delivered immediately.
	Subscribe(path string) (*Subscription, error)

	Close() error
}

// Decode unmarshals a snapshot value (or any subtree of one) into a
// typed struct by round-tripping through JSON.
func Decode(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
