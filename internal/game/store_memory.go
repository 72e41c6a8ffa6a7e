package game

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and single-node
// development runs. Values are cloned on the way in and out so callers
// can never mutate stored state outside Update.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	codes    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
	}
}

func (s *MemoryStore) Close() error { return nil }

func cloneSession(src *Session) *Session {
	raw, _ := json.Marshal(src)
	var dst Session
	_ = json.Unmarshal(raw, &dst)
	return &dst
}

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneSession(sess)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	s.sessions[id] = next
	return cloneSession(next), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) BindCode(_ context.Context, code, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(strings.TrimSpace(code))
	if _, taken := s.codes[key]; taken {
		return false, nil
	}
	s.codes[key] = strings.TrimSpace(id)
	return true, nil
}

func (s *MemoryStore) ResolveCode(_ context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}
