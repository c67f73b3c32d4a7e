package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/port/sessionstore"
)

// Store implements sessionstore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ sessionstore.Store = (*Store)(nil)

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const sessionColumns = `id, status, project, project_dir, environment, webhook_url, max_iterations,
	passing, total, percentage, current_feature, commit_count, sandbox_id, last_test_results,
	error, created_at, updated_at`

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	results, err := marshalResults(sess.LastTestResults)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO implementation_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sess.ID, sess.Status, sess.Project, sess.ProjectDir, sess.Environment, sess.WebhookURL,
		sess.MaxIterations, sess.Progress.Passing, sess.Progress.Total, sess.Progress.Percentage,
		sess.CurrentFeature, sess.CommitCount, string(sess.SandboxID), results,
		sess.Error, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	results, err := marshalResults(sess.LastTestResults)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE implementation_sessions SET
			status = $2, passing = $3, total = $4, percentage = $5, current_feature = $6,
			commit_count = $7, sandbox_id = $8, last_test_results = $9, error = $10, updated_at = $11
		 WHERE id = $1`,
		sess.ID, sess.Status, sess.Progress.Passing, sess.Progress.Total, sess.Progress.Percentage,
		sess.CurrentFeature, sess.CommitCount, string(sess.SandboxID), results, sess.Error, sess.UpdatedAt)
	return execExpectOne(tag, err, "update session %s", sess.ID)
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM implementation_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM implementation_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []session.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) SaveLedger(ctx context.Context, sessionID string, l *ledger.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO feature_ledgers (session_id, features, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET features = EXCLUDED.features, updated_at = now()`,
		sessionID, data)
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) GetLedger(ctx context.Context, sessionID string) (*ledger.Ledger, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT features FROM feature_ledgers WHERE session_id = $1`, sessionID).Scan(&data)
	if err != nil {
		return nil, notFoundWrap(err, "get ledger %s", sessionID)
	}
	l := &ledger.Ledger{}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", sessionID, err)
	}
	return l, nil
}

func scanSession(row scannable) (session.Session, error) {
	var (
		sess      session.Session
		sandboxID string
		results   []byte
	)
	err := row.Scan(&sess.ID, &sess.Status, &sess.Project, &sess.ProjectDir, &sess.Environment,
		&sess.WebhookURL, &sess.MaxIterations, &sess.Progress.Passing, &sess.Progress.Total,
		&sess.Progress.Percentage, &sess.CurrentFeature, &sess.CommitCount, &sandboxID, &results,
		&sess.Error, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return sess, err
	}
	sess.SandboxID = sandbox.Handle(sandboxID)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &sess.LastTestResults); err != nil {
			return sess, fmt.Errorf("decode test results: %w", err)
		}
	}
	return sess, nil
}

func marshalResults(r *sandbox.TestResults) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal test results: %w", err)
	}
	return data, nil
}
