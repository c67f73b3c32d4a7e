// Package sessionstore defines the persistence port for implementation
// sessions and their feature ledgers.
//
// Concurrency discipline: each session id has exactly one writer (its
// driver); any number of readers may call Get, List and GetLedger.
package sessionstore

import (
	"context"

	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
)

// Store persists sessions and ledgers. Get and GetLedger return
// domain.ErrNotFound for unknown ids.
type Store interface {
	CreateSession(ctx context.Context, s *session.Session) error
	UpdateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context) ([]session.Session, error)

	SaveLedger(ctx context.Context, sessionID string, l *ledger.Ledger) error
	GetLedger(ctx context.Context, sessionID string) (*ledger.Ledger, error)
}
