package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/popilot-dev/popilot/internal/edit"
)

// DebounceInterval is the spec §4.8 mutation-to-disk debounce window.
const DebounceInterval = 500 * time.Millisecond

// RetentionCount is the spec §4.8 default bounded retention: the newest
// N sessions by updated_at are kept on disk, older ones are pruned.
const RetentionCount = 50

const pointerFileName = "last-session-id.txt"

// Store owns the append-only in-memory session list and its debounced
// JSON persistence. One Store is exclusively owned by the process that
// created it (spec §3 Session ownership); concurrent processes sharing
// a workspace are not supported (spec §5).
type Store struct {
	mu       sync.Mutex
	dir      string
	sessions map[string]*Session
	timers   map[string]*time.Timer
}

// Init implements the spec §9 three-explicit-stores lifecycle: it opens
// (creating if absent) the sessions directory and loads every existing
// session record into memory.
func Init(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	s := &Store{
		dir:      dir,
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		s.sessions[sess.ID] = &sess
	}
	return nil
}

// Create starts a new session owned by this process.
func (s *Store) Create(model string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Model:     model,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	s.scheduleSaveLocked(sess.ID)
	s.writePointerLocked(sess.ID)
	return sess.clone()
}

// Get returns a copy of the session, so callers cannot mutate the
// Store's internal history outside of AddMessage/SetThreadID.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// AddMessage appends to the in-memory history (append-only per spec
// §4.8) and schedules a debounced flush to disk.
func (s *Store) AddMessage(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	s.scheduleSaveLocked(id)
	return nil
}

// SetThreadID sets the server-assigned thread id once. Per spec §3
// invariant (ii), thread_id is immutable once stored: a second call with
// a different value is an error.
func (s *Store) SetThreadID(id, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.ThreadID != "" && sess.ThreadID != threadID {
		return fmt.Errorf("thread_id is immutable: session %s already has %q", id, sess.ThreadID)
	}
	if sess.ThreadID == threadID {
		return nil
	}
	sess.ThreadID = threadID
	sess.UpdatedAt = time.Now()
	s.scheduleSaveLocked(id)
	return nil
}

// List returns all known sessions, newest-updated first.
func (s *Store) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Restore reads the atomic pointer file written on every Create/flush
// and returns the session id to auto-restore at startup.
func (s *Store) Restore() (string, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, pointerFileName))
	if err != nil {
		return "", false
	}
	id := string(raw)
	if id == "" {
		return "", false
	}
	return id, true
}

// Flush cancels any pending debounce timer for id and writes it to disk
// immediately. Safe to call on a session with no pending timer.
func (s *Store) Flush(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(id)
}

// FlushAll synchronously persists every in-memory session, for the
// process shutdown half of the init/flush lifecycle (spec §9).
func (s *Store) FlushAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sessions {
		if err := s.flushLocked(id); err != nil {
			return err
		}
	}
	return s.pruneLocked()
}

func (s *Store) scheduleSaveLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(DebounceInterval, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = s.flushLocked(id)
		_ = s.pruneLocked()
	})
}

func (s *Store) flushLocked(id string) error {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", id, err)
	}
	if err := edit.WriteWhole(s.sessionPath(id), data, false); err != nil {
		return err
	}
	return s.writePointerLocked(id)
}

func (s *Store) writePointerLocked(id string) error {
	return edit.WriteWhole(filepath.Join(s.dir, pointerFileName), []byte(id), false)
}

// pruneLocked removes the on-disk record (and in-memory entry) for every
// session beyond the RetentionCount newest by updated_at.
func (s *Store) pruneLocked() error {
	if len(s.sessions) <= RetentionCount {
		return nil
	}
	ordered := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		ordered = append(ordered, sess)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].UpdatedAt.After(ordered[j].UpdatedAt) })

	for _, stale := range ordered[RetentionCount:] {
		delete(s.sessions, stale.ID)
		if t, ok := s.timers[stale.ID]; ok {
			t.Stop()
			delete(s.timers, stale.ID)
		}
		_ = os.Remove(s.sessionPath(stale.ID))
	}
	return nil
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}
