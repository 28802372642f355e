package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/metrics"
)

var bucketRecords = []byte("records")

// subscriber channel buffer; a full buffer drops the snapshot rather
// than blocking the writer
const subBuffer = 16

// BoltStore implements Store on a single BoltDB bucket. Keys are full
// slash paths to leaves, values are JSON-encoded leaf values. Subtree
// reads assemble the nested map by prefix scan.
type BoltStore struct {
	db     *bolt.DB
	mu     sync.RWMutex
	subs   map[*Subscription]bool
	logger zerolog.Logger
}

// NewBoltStore creates a new BoltDB-backed record store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "traceon.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:     db,
		subs:   make(map[*Subscription]bool),
		logger: log.WithComponent("store"),
	}, nil
}

// Close cancels all subscriptions and closes the database
func (s *BoltStore) Close() error {
	s.mu.Lock()
	for sub := range s.subs {
		close(sub.ch)
		delete(s.subs, sub)
		metrics.StoreSubscriptions.Dec()
	}
	s.mu.Unlock()
	return s.db.Close()
}

func (s *BoltStore) Get(path string) (any, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	var value any
	err := s.db.View(func(tx *bolt.Tx) error {
		value = assemble(tx.Bucket(bucketRecords), path)
		return nil
	})
	return value, err
}

func (s *BoltStore) Put(path string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	norm, err := normalize(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if err := deleteSubtree(b, path); err != nil {
			return err
		}
		return writeLeaves(b, path, norm)
	})
	if err != nil {
		return err
	}

	metrics.StoreWritesTotal.WithLabelValues("put").Inc()
	s.publish(path)
	return nil
}

func (s *BoltStore) Update(path string, fields map[string]any) error {
	if err := validatePath(path); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for key, v := range fields {
			if err := validateSegment(key); err != nil {
				return err
			}
			norm, err := normalize(v)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", path, key, err)
			}
			child := path + "/" + key
			if err := deleteSubtree(b, child); err != nil {
				return err
			}
			if err := writeLeaves(b, child, norm); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.StoreWritesTotal.WithLabelValues("update").Inc()
	s.publish(path)
	return nil
}

func (s *BoltStore) Delete(path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return deleteSubtree(tx.Bucket(bucketRecords), path)
	})
	if err != nil {
		return err
	}

	metrics.StoreWritesTotal.WithLabelValues("delete").Inc()
	s.publish(path)
	return nil
}

func (s *BoltStore) Subscribe(path string) (*Subscription, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	sub := &Subscription{
		path: path,
		ch:   make(chan Snapshot, subBuffer),
	}
	sub.cancel = func(su *Subscription) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.subs[su] {
			delete(s.subs, su)
			close(su.ch)
			metrics.StoreSubscriptions.Dec()
		}
	}

	s.mu.Lock()
	s.subs[sub] = true
	s.mu.Unlock()
	metrics.StoreSubscriptions.Inc()

	// Initial snapshot; the fresh buffer always has room
	value, err := s.Get(path)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.ch <- Snapshot{Path: path, Value: value}

	return sub, nil
}

// publish delivers fresh snapshots to every subscription whose path
// lies on the same root-to-leaf line as the changed path. Delivery is
// non-blocking; a slow consumer loses intermediate snapshots, never
// stalls a writer.
func (s *BoltStore) publish(changed string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.subs {
		if !pathsOverlap(sub.path, changed) {
			continue
		}
		value, err := s.Get(sub.path)
		if err != nil {
			s.logger.Error().Err(err).Str("path", sub.path).Msg("snapshot assembly failed")
			continue
		}
		select {
		case sub.ch <- Snapshot{Path: sub.path, Value: value}:
		default:
			metrics.SnapshotsDropped.Inc()
		}
	}
}

// pathsOverlap reports whether a change at one path affects a
// subscription rooted at the other
func pathsOverlap(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// normalize round-trips a value through JSON so every subtree is plain
// map[string]any with JSON-typed leaves
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeLeaves(b *bolt.Bucket, path string, v any) error {
	if m, ok := v.(map[string]any); ok {
		// An empty map writes nothing; the preceding subtree delete
		// already cleared the path
		for key, child := range m {
			if err := validateSegment(key); err != nil {
				return err
			}
			if err := writeLeaves(b, path+"/"+key, child); err != nil {
				return err
			}
		}
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(path), data)
}

func deleteSubtree(b *bolt.Bucket, path string) error {
	if err := b.Delete([]byte(path)); err != nil {
		return err
	}

	prefix := []byte(path + "/")
	var stale [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		key := make([]byte, len(k))
		copy(key, k)
		stale = append(stale, key)
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// assemble returns the leaf value at path, or the nested subtree built
// from every leaf under it, or nil when nothing exists
func assemble(b *bolt.Bucket, path string) any {
	if data := b.Get([]byte(path)); data != nil {
		var leaf any
		if err := json.Unmarshal(data, &leaf); err == nil {
			return leaf
		}
		return nil
	}

	prefix := path + "/"
	root := make(map[string]any)
	found := false

	c := b.Cursor()
	for k, v := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, v = c.Next() {
		var leaf any
		if err := json.Unmarshal(v, &leaf); err != nil {
			continue
		}
		found = true

		segments := strings.Split(string(k[len(prefix):]), "/")
		node := root
		for _, seg := range segments[:len(segments)-1] {
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[seg] = child
			}
			node = child
		}
		node[segments[len(segments)-1]] = leaf
	}

	if !found {
		return nil
	}
	return root
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	for _, seg := range strings.Split(path, "/") {
		if err := validateSegment(seg); err != nil {
			return fmt.Errorf("invalid path %q: %w", path, err)
		}
	}
	return nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("empty path segment")
	}
	if strings.ContainsAny(seg, ".#$[]/") {
		return fmt.Errorf("path segment %q contains a forbidden character", seg)
	}
	return nil
}
