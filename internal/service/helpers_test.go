package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/event"
	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/port/messagequeue"
)

// --- chat ---

type mockChat struct {
	mu      sync.Mutex
	fn      func(req llm.Request) (llm.Response, error)
	prompts []string
	models  []string
	pingErr error
}

func replying(text string) *mockChat {
	return &mockChat{fn: func(llm.Request) (llm.Response, error) { return llm.Response{Content: text}, nil }}
}

func failing(err error) *mockChat {
	return &mockChat{fn: func(llm.Request) (llm.Response, error) { return llm.Response{}, err }}
}

func (m *mockChat) Chat(_ context.Context, req llm.Request) (llm.Response, error) {
	m.mu.Lock()
	if len(req.Messages) > 0 {
		m.prompts = append(m.prompts, req.Messages[len(req.Messages)-1].Content)
	}
	m.models = append(m.models, req.Model)
	m.mu.Unlock()
	return m.fn(req)
}

func (m *mockChat) Ping(context.Context) error { return m.pingErr }

func (m *mockChat) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *mockChat) allPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// routerWith admits client as every keyed backend listed.
func routerWith(client llm.ChatClient, backends ...llm.Backend) *ProviderRouter {
	cands := make([]Candidate, len(backends))
	for i, b := range backends {
		cands[i] = Candidate{Backend: b, Client: client, APIKey: "test-key"}
	}
	return NewProviderRouter(context.Background(), cands)
}

// --- cache ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- queue ---

type published struct {
	subject string
	data    []byte
}

type mockQueue struct {
	mu   sync.Mutex
	msgs []published
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, published{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.msgs))
	for i, m := range q.msgs {
		out[i] = m.subject
	}
	return out
}

// --- sandbox ---

type mockExecutor struct {
	mu        sync.Mutex
	createErr error
	statusErr error
	// exec decides the outcome of one Execute call; attempt counts from 1 per file set.
	exec      func(files map[string]string, attempt int) ([]sandbox.CommandResult, error)
	attempts  map[string]int
	executes  int
	destroyed int
}

func newMockExecutor(exec func(map[string]string, int) ([]sandbox.CommandResult, error)) *mockExecutor {
	return &mockExecutor{exec: exec, attempts: make(map[string]int)}
}

func (e *mockExecutor) Create(_ context.Context, env string, _ time.Duration) (sandbox.Handle, error) {
	if e.createErr != nil {
		return "", e.createErr
	}
	return sandbox.Handle("sbx-" + env), nil
}

func (e *mockExecutor) Execute(_ context.Context, _ sandbox.Handle, files map[string]string, _ []string, _ time.Duration) ([]sandbox.CommandResult, error) {
	e.mu.Lock()
	key := fileSetKey(files)
	e.attempts[key]++
	attempt := e.attempts[key]
	e.executes++
	e.mu.Unlock()
	return e.exec(files, attempt)
}

func (e *mockExecutor) Status(context.Context, sandbox.Handle) (sandbox.Status, error) {
	if e.statusErr != nil {
		return sandbox.Status{}, e.statusErr
	}
	return sandbox.Status{State: "running", Uptime: 5}, nil
}

func (e *mockExecutor) Destroy(context.Context, sandbox.Handle) (sandbox.Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed++
	return sandbox.Summary{Uptime: 5, ExecutionCount: e.executes}, nil
}

func (e *mockExecutor) counts() (executes, destroyed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executes, e.destroyed
}

func fileSetKey(files map[string]string) string {
	for name := range files {
		if strings.HasSuffix(name, ".code") {
			return name
		}
	}
	return ""
}

func passResult(stdout string) []sandbox.CommandResult {
	return []sandbox.CommandResult{
		{Command: "install", ExitCode: 0},
		{Command: "test", ExitCode: 0, Stdout: stdout},
	}
}

func failResult(stdout string) []sandbox.CommandResult {
	return []sandbox.CommandResult{
		{Command: "install", ExitCode: 0},
		{Command: "test", ExitCode: 1, Stdout: stdout},
	}
}

// --- code generation ---

type stubGenerator struct {
	err error
}

func (g stubGenerator) Generate(_ context.Context, f council.FeatureSpec, _ string) (GeneratedFiles, error) {
	if g.err != nil {
		return GeneratedFiles{}, g.err
	}
	return GeneratedFiles{
		Code:  map[string]string{f.ID + ".code": f.Description},
		Tests: map[string]string{f.ID + ".test": strings.Join(f.TestCases, "\n")},
	}, nil
}

// --- git ---

type mockCommitter struct {
	mu       sync.Mutex
	inits    int
	messages []string
}

func (c *mockCommitter) Init(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inits++
	return nil
}

func (c *mockCommitter) CommitAll(_ context.Context, _ string, msg string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return fmt.Sprintf("sha%d", len(c.messages)), nil
}

func (c *mockCommitter) commits() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

// --- session store ---

type mockStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	order    []string
	ledgers  map[string][]byte
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]session.Session), ledgers: make(map[string][]byte)}
}

func (s *mockStore) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return domain.ErrConflict
	}
	s.sessions[sess.ID] = *sess
	s.order = append(s.order, sess.ID)
	return nil
}

func (s *mockStore) UpdateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return domain.ErrNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *mockStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *mockStore) ListSessions(context.Context) ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	return out, nil
}

func (s *mockStore) SaveLedger(_ context.Context, id string, l *ledger.Ledger) error {
	data, err := l.MarshalJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[id] = data
	return nil
}

func (s *mockStore) GetLedger(_ context.Context, id string) (*ledger.Ledger, error) {
	s.mu.Lock()
	data, ok := s.ledgers[id]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	l := &ledger.Ledger{}
	if err := l.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return l, nil
}

// --- progress sinks ---

type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []event.Progress
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(_ context.Context, ev event.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) received() []event.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Progress(nil), s.events...)
}

var errBoom = errors.New("boom")
