// Package registry owns the subscriber file: a single JSON document that
// is loaded once at startup and rewritten in full on every mutation. No
// other component reads or writes the file.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/jxoesneon/hermesbot/pkg/logx"
)

var (
	// ErrNotFound means the operation targeted a subscriber id that is
	// not registered.
	ErrNotFound = errors.New("subscriber not found")
)

// Registry is a mutex-guarded view over the subscriber document. Every
// mutation is a read-modify-write of the whole document under the lock;
// the backing file has no transactional guarantee of its own, so the
// lock is what prevents two concurrent subscribes from losing an update.
type Registry struct {
	path string
	log  logx.Logger

	mu  sync.Mutex
	doc document
}

// Open loads the registry from path, creating an empty document (and the
// file) if none exists. Malformed content is downgraded to an empty
// registry with a warning: an unreadable subscriber list should not keep
// the bot from starting, and the file is rewritten on the next mutation.
// Only real I/O failures are returned.
func Open(path string, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{path: path, log: log}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.log.Info("no registry file found, creating a new one", logx.String("path", path))
		r.doc = document{Subscribers: map[string]Record{}}
		if err := r.persistLocked(); err != nil {
			return nil, err
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		r.log.Warn("registry file is malformed, starting from an empty one", logx.String("path", path), logx.Err(err))
		doc = document{}
	}
	if doc.Subscribers == nil {
		doc.Subscribers = map[string]Record{}
	}
	r.doc = doc
	r.log.Info("registry loaded", logx.Int("subscribers", len(doc.Subscribers)))
	return r, nil
}

// persistLocked rewrites the whole document. Callers hold r.mu.
// Write-to-temp plus rename keeps a crash from truncating the registry.
func (r *Registry) persistLocked() error {
	b, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".registry-*")
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.doc.Subscribers[id]
	return ok
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.doc.Subscribers)
}

// Upsert registers a subscriber or refreshes the profile fields of an
// existing one. An existing schedule is always preserved. The returned
// bool is true when the subscriber was newly added; re-adding is a
// no-op, not an error.
func (r *Registry) Upsert(id string, displayName string, emails []string) (added bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.doc.Subscribers[id]
	rec := Record{
		DisplayName: displayName,
		Emails:      append([]string(nil), emails...),
		Schedule:    prev.Schedule,
	}
	if existed && rec.DisplayName == prev.DisplayName && equalStrings(rec.Emails, prev.Emails) {
		return false, nil
	}
	r.doc.Subscribers[id] = rec
	if err := r.persistLocked(); err != nil {
		// Roll the in-memory state back so memory and file stay in step.
		if existed {
			r.doc.Subscribers[id] = prev
		} else {
			delete(r.doc.Subscribers, id)
		}
		return false, err
	}
	return !existed, nil
}

// AttachSchedule stores (or replaces) the schedule of a registered
// subscriber. Attaching to an unknown id is a hard error: subscription
// comes first, always.
func (r *Registry) AttachSchedule(id string, sched ScheduleDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.doc.Subscribers[id]
	if !ok {
		return fmt.Errorf("attach schedule %q: %w", id, ErrNotFound)
	}
	prev := rec.Schedule
	rec.Schedule = &sched
	r.doc.Subscribers[id] = rec
	if err := r.persistLocked(); err != nil {
		rec.Schedule = prev
		r.doc.Subscribers[id] = rec
		return err
	}
	return nil
}

// Remove unregisters a subscriber and returns the removed record.
func (r *Registry) Remove(id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.doc.Subscribers[id]
	if !ok {
		return Record{}, fmt.Errorf("remove %q: %w", id, ErrNotFound)
	}
	delete(r.doc.Subscribers, id)
	if err := r.persistLocked(); err != nil {
		r.doc.Subscribers[id] = rec
		return Record{}, err
	}
	return rec, nil
}

// Get returns a copy of a subscriber record.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.doc.Subscribers[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Snapshot returns a deep copy of all subscribers, safe to hand to the
// planner while mutations continue.
func (r *Registry) Snapshot() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Record, len(r.doc.Subscribers))
	for id, rec := range r.doc.Subscribers {
		out[id] = rec.clone()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
