// Package sessioncache holds the agent's query-keyed projections of session
// records. Views are cached as the raw JSON documents the session service
// returned, so snapshot/restore is byte-exact and patching can preserve
// whatever envelope shape a view was fetched with.
package sessioncache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/models"
)

// Key is a structured query descriptor, e.g. {"sessions", "2024-05", "0"}.
type Key []string

// NewKey builds a key from its parts.
func NewKey(parts ...string) Key { return Key(parts) }

// String renders the key for map indexing and logs.
func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix reports whether k starts with prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Well-known view keys. The sessions listing is parameterized by month and
// page, so only its prefix is fixed.
var (
	PrefixSessions = Key{"sessions"}
	PrefixLive     = Key{"live-sessions"}
	PrefixOnline   = Key{"online-sessions"}

	KeyCurrentLive = Key{"live-sessions", "current"}
	KeyOnlineList  = Key{"online-sessions", "list"}
)

// SessionsKey is the cache key for one page of the sessions-by-month view.
func SessionsKey(month string, page int) Key {
	return Key{"sessions", month, fmt.Sprintf("%d", page)}
}

type view struct {
	key       Key
	body      []byte
	stale     bool
	fetchedAt time.Time
}

// Store is a concurrency-safe view cache. It is shared by every conversion
// transaction and by background refetches; all mutations are scoped to the
// keys they match, never a blanket overwrite.
type Store struct {
	mu    sync.RWMutex
	views map[string]*view
	log   *zap.Logger
}

// NewStore creates an empty view cache.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{views: make(map[string]*view), log: log}
}

// Get returns a copy of the raw view body, if present.
func (s *Store) Get(key Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[key.String()]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v.body))
	copy(out, v.body)
	return out, true
}

// GetAs decodes the view body into dst. Returns false when the view is
// absent or does not decode.
func (s *Store) GetAs(key Key, dst any) bool {
	body, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(body, dst) == nil
}

// IsStale reports whether the view is missing or has been invalidated.
func (s *Store) IsStale(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[key.String()]
	return !ok || v.stale
}

// Put encodes value and stores it as the fresh body for key.
func (s *Store) Put(key Key, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", key, err)
	}
	s.PutRaw(key, body)
	return nil
}

// PutRaw stores body as the fresh content of key.
func (s *Store) PutRaw(key Key, body []byte) {
	cp := make([]byte, len(body))
	copy(cp, body)
	s.mu.Lock()
	s.views[key.String()] = &view{key: key, body: cp, fetchedAt: time.Now()}
	s.mu.Unlock()
}

// Invalidate marks every view under prefix as stale so the next read goes
// back to the session service. Returns the number of views touched.
func (s *Store) Invalidate(prefix Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.views {
		if v.key.HasPrefix(prefix) {
			v.stale = true
			n++
		}
	}
	s.log.Debug("views invalidated", zap.String("prefix", prefix.String()), zap.Int("count", n))
	return n
}

// Drop removes every view under prefix.
func (s *Store) Drop(prefix Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.views {
		if v.key.HasPrefix(prefix) {
			delete(s.views, k)
			n++
		}
	}
	return n
}

// PatchSessions applies fn to the session content of every view under
// prefix. A view may be a flat array or a paginated envelope; its shape is
// preserved. The same record can be visible in several independently
// fetched windows, so every matching view is rewritten, not just one.
func (s *Store) PatchSessions(prefix Key, fn func([]models.Session) []models.Session) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patched := 0
	for _, v := range s.views {
		if !v.key.HasPrefix(prefix) {
			continue
		}
		body, err := patchBody(v.body, fn)
		if err != nil {
			return patched, fmt.Errorf("patch view %s: %w", v.key, err)
		}
		v.body = body
		patched++
	}
	return patched, nil
}

func patchBody(body []byte, fn func([]models.Session) []models.Session) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return body, nil
	}
	if trimmed[0] == '[' {
		var content []models.Session
		if err := json.Unmarshal(trimmed, &content); err != nil {
			return nil, err
		}
		return json.Marshal(fn(content))
	}
	// Paginated envelope: rewrite only the content field, keep the rest of
	// the envelope untouched.
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope["content"]
	if !ok {
		return body, nil
	}
	var content []models.Session
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	patched, err := json.Marshal(fn(content))
	if err != nil {
		return nil, err
	}
	envelope["content"] = patched
	return json.Marshal(envelope)
}

// Snapshot captures the current bodies of every view under the given
// prefixes, for byte-exact restore after a failed optimistic mutation.
type Snapshot struct {
	entries map[string]snapEntry
}

type snapEntry struct {
	key   Key
	body  []byte
	stale bool
}

// Snapshot records the state of all views matching any of the prefixes.
func (s *Store) Snapshot(prefixes ...Key) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{entries: make(map[string]snapEntry)}
	for id, v := range s.views {
		for _, p := range prefixes {
			if v.key.HasPrefix(p) {
				body := make([]byte, len(v.body))
				copy(body, v.body)
				snap.entries[id] = snapEntry{key: v.key, body: body, stale: v.stale}
				break
			}
		}
	}
	return snap
}

// Restore writes the snapshotted bodies back, byte for byte. Views that the
// snapshot did not cover are left alone. A covered view written concurrently
// since the snapshot was taken is overwritten with the older body; its next
// refetch repairs it, the remote service being authoritative either way.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range snap.entries {
		body := make([]byte, len(e.body))
		copy(body, e.body)
		s.views[id] = &view{key: e.key, body: body, stale: e.stale, fetchedAt: time.Now()}
	}
}

// Len returns the number of cached views.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}
