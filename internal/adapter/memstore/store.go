// Package memstore is the in-process session store used when no database
// is configured. State is lost on restart.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/port/sessionstore"
)

// Store keeps copies of sessions and ledgers so callers never share
// mutable state with it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	ledgers  map[string][]byte
}

var _ sessionstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		ledgers:  make(map[string][]byte),
	}
}

func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("create session %s: %w", sess.ID, domain.ErrConflict)
	}
	s.sessions[sess.ID] = clone(sess)
	return nil
}

func (s *Store) UpdateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("update session %s: %w", sess.ID, domain.ErrNotFound)
	}
	s.sessions[sess.ID] = clone(sess)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrNotFound)
	}
	out := clone(&sess)
	return &out, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(_ context.Context) ([]session.Session, error) {
	s.mu.RLock()
	out := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, clone(&sess))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b session.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) SaveLedger(_ context.Context, sessionID string, l *ledger.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[sessionID] = data
	return nil
}

func (s *Store) GetLedger(_ context.Context, sessionID string) (*ledger.Ledger, error) {
	s.mu.RLock()
	data, ok := s.ledgers[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get ledger %s: %w", sessionID, domain.ErrNotFound)
	}
	l := &ledger.Ledger{}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", sessionID, err)
	}
	return l, nil
}

func clone(sess *session.Session) session.Session {
	out := *sess
	if sess.LastTestResults != nil {
		tr := *sess.LastTestResults
		out.LastTestResults = &tr
	}
	return out
}
