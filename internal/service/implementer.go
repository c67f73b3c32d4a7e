package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	cfotel "github.com/Strob0t/CodeCouncil/internal/adapter/otel"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/event"
	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/logger"
	"github.com/Strob0t/CodeCouncil/internal/port/notifier"
	portsandbox "github.com/Strob0t/CodeCouncil/internal/port/sandbox"
	"github.com/Strob0t/CodeCouncil/internal/port/sessionstore"
)

const (
	planFile    = "implementation_plan.json"
	ledgerFile  = "feature_list.json"
	unknownStat = "unknown"
)

var projectNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Committer is the version-control surface the implementer needs.
// *git.Repo satisfies it.
type Committer interface {
	Init(ctx context.Context, dir string) error
	CommitAll(ctx context.Context, dir, msg string) (string, error)
}

// ImplementerConfig holds the knobs of the verification loop.
type ImplementerConfig struct {
	WorkspaceRoot      string
	DefaultEnvironment string
	MaxIterations      int
	MaxAttempts        int
	Backoff            time.Duration
	SandboxLifetime    time.Duration
	ExecuteTimeout     time.Duration
	// CleanupTimeout bounds the sandbox release call made after a session ends.
	CleanupTimeout time.Duration
}

// StartRequest describes one implementation session.
type StartRequest struct {
	Plan          council.Plan
	Project       string
	WebhookURL    string
	MaxIterations int
	Environment   string
}

// StartResult is returned as soon as the session is registered.
type StartResult struct {
	SessionID  string         `json:"session_id"`
	Status     session.Status `json:"status"`
	ProjectDir string         `json:"project_dir"`
	SandboxID  sandbox.Handle `json:"sandbox_id"`
}

// Implementer drives implementation sessions: one background driver per
// session walks the feature ledger in order, verifies every feature in a
// sandbox with a bounded retry loop and commits the features that pass.
type Implementer struct {
	cfg      ImplementerConfig
	store    sessionstore.Store
	sandbox  portsandbox.Executor
	gen      CodeGenerator
	vcs      Committer
	notifier *ProgressNotifier
	metrics  *cfotel.Metrics

	now     func() time.Time
	drivers sync.WaitGroup
}

// NewImplementer creates an Implementer. notifier and metrics may be nil.
func NewImplementer(
	cfg ImplementerConfig,
	store sessionstore.Store,
	exec portsandbox.Executor,
	gen CodeGenerator,
	vcs Committer,
	n *ProgressNotifier,
	metrics *cfotel.Metrics,
) *Implementer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 30 * time.Second
	}
	return &Implementer{
		cfg:      cfg,
		store:    store,
		sandbox:  exec,
		gen:      gen,
		vcs:      vcs,
		notifier: n,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Start validates the plan, provisions the sandbox and workspace, registers
// the session as started and launches its driver in the background.
func (i *Implementer) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if !projectNameRe.MatchString(req.Project) {
		return StartResult{}, fmt.Errorf("%w: project must be a plain directory name", domain.ErrValidation)
	}
	plan := req.Plan
	plan.Features = append([]council.FeatureSpec(nil), req.Plan.Features...)
	plan.Normalize()
	if err := plan.Validate(); err != nil {
		return StartResult{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	env := req.Environment
	if env == "" {
		env = i.cfg.DefaultEnvironment
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = i.cfg.MaxIterations
	}

	handle, err := i.sandbox.Create(ctx, env, i.cfg.SandboxLifetime)
	if err != nil {
		return StartResult{}, fmt.Errorf("create sandbox: %w", err)
	}

	dir := filepath.Join(i.cfg.WorkspaceRoot, req.Project)
	if err := i.prepareWorkspace(dir, &plan); err != nil {
		i.release(ctx, handle)
		return StartResult{}, err
	}

	now := i.now().UTC()
	sess := &session.Session{
		ID:            "session-" + uuid.NewString(),
		Status:        session.StatusStarted,
		Project:       req.Project,
		ProjectDir:    dir,
		Environment:   env,
		WebhookURL:    req.WebhookURL,
		MaxIterations: maxIter,
		Progress:      ledger.Progress{Total: len(plan.Features)},
		SandboxID:     handle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := i.store.CreateSession(ctx, sess); err != nil {
		i.release(ctx, handle)
		return StartResult{}, fmt.Errorf("register session: %w", err)
	}

	res := StartResult{
		SessionID:  sess.ID,
		Status:     sess.Status,
		ProjectDir: dir,
		SandboxID:  handle,
	}

	slog.InfoContext(ctx, "implementation session started",
		"session_id", sess.ID, "project", sess.Project, "environment", env,
		"features", len(plan.Features), "sandbox_id", handle)

	i.drivers.Add(1)
	go i.drive(context.WithoutCancel(ctx), sess, plan)

	return res, nil
}

func (i *Implementer) prepareWorkspace(dir string, plan *council.Plan) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, planFile), data, 0o644); err != nil { //nolint:gosec // workspace files are meant to be readable
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// drive owns sess until it reaches a terminal state. The sandbox is
// released exactly once on every exit path.
func (i *Implementer) drive(ctx context.Context, sess *session.Session, plan council.Plan) {
	defer i.drivers.Done()

	ctx = logger.WithSessionID(ctx, sess.ID)
	ctx, span := cfotel.StartSessionSpan(ctx, sess.ID, sess.Project)
	defer span.End()

	var once sync.Once
	release := func() { once.Do(func() { i.release(ctx, sess.SandboxID) }) }
	defer release()

	err := i.runGuarded(ctx, sess, plan)
	if err == nil {
		span.SetAttributes(
			attribute.Int("passing", sess.Progress.Passing),
			attribute.Int("total", sess.Progress.Total),
		)
		i.metrics.SessionEnded(ctx, string(session.StatusCompleted))
		return
	}

	span.SetStatus(codes.Error, err.Error())
	sess.Fail(err, i.now().UTC())
	if uerr := i.store.UpdateSession(ctx, sess); uerr != nil {
		slog.ErrorContext(ctx, "failed to persist failed session", "error", uerr)
	}
	i.metrics.SessionEnded(ctx, string(session.StatusFailed))
	slog.ErrorContext(ctx, "implementation session failed", "error", err)
}

// runGuarded converts a panic in the loop into a session fault.
func (i *Implementer) runGuarded(ctx context.Context, sess *session.Session, plan council.Plan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrSessionFault, r)
		}
	}()
	if err := i.run(ctx, sess, plan); err != nil {
		if errors.Is(err, domain.ErrSessionFault) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrSessionFault, err)
	}
	return nil
}

func (i *Implementer) run(ctx context.Context, sess *session.Session, plan council.Plan) error {
	if err := sess.Transition(session.StatusRunning, i.now().UTC()); err != nil {
		return err
	}
	if err := i.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	l, err := ledger.New(plan.Features)
	if err != nil {
		return fmt.Errorf("materialize ledger: %w", err)
	}
	if err := i.persistLedger(ctx, sess, l); err != nil {
		return err
	}
	if err := i.vcs.Init(ctx, sess.ProjectDir); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	sinks := i.sessionSinks(ctx, sess)
	if i.notifier != nil {
		defer i.notifier.Release(sinks...)
	}
	recipe := sandbox.RecipeFor(sess.Environment)

	records := l.Records()
	limit := min(len(records), sess.MaxIterations)
	for idx := range limit {
		completed, err := i.implementFeature(ctx, sess, l, &records[idx], recipe)
		if err != nil {
			return fmt.Errorf("feature %s: %w", records[idx].ID, err)
		}

		sess.Progress = l.Progress()
		sess.UpdatedAt = i.now().UTC()
		if err := i.persistLedger(ctx, sess, l); err != nil {
			return err
		}
		if err := i.store.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		i.emit(ctx, sess, event.TypeTestProgress, completed, sinks)
	}

	sess.Progress = l.Progress()
	sess.CurrentFeature = ""
	if err := sess.Transition(session.StatusCompleted, i.now().UTC()); err != nil {
		return err
	}
	if err := i.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	i.emit(ctx, sess, event.TypeImplementationComplete, []string{}, sinks)

	slog.InfoContext(ctx, "implementation session completed",
		"passing", sess.Progress.Passing, "total", sess.Progress.Total,
		"percentage", sess.Progress.Percentage, "commits", sess.CommitCount)
	return nil
}

// implementFeature generates, verifies and, on success, commits one
// feature. An exhausted retry budget is not an error: the feature simply
// stays failing. It returns the newly passing test descriptions.
func (i *Implementer) implementFeature(
	ctx context.Context,
	sess *session.Session,
	l *ledger.Ledger,
	rec *ledger.FeatureRecord,
	recipe sandbox.Recipe,
) ([]string, error) {
	ctx, span := cfotel.StartFeatureSpan(ctx, sess.ID, rec.ID)
	defer span.End()

	sess.CurrentFeature = rec.Description
	sess.UpdatedAt = i.now().UTC()
	if err := i.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	files, err := i.gen.Generate(ctx, rec.FeatureSpec, sess.Environment)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	fileSet := files.All()
	for name, content := range recipe.Manifests(sess.Project) {
		fileSet[name] = content
	}

	results, verr := i.verify(ctx, sess, rec.ID, fileSet, recipe.Commands)
	if len(results) > 0 {
		if tr := ParseTestResults(results[len(results)-1].Stdout); tr != nil {
			sess.LastTestResults = tr
		}
	}
	if verr != nil {
		span.SetStatus(codes.Error, verr.Error())
		slog.WarnContext(ctx, "feature verification exhausted", "feature", rec.ID, "error", verr)
		return []string{}, nil
	}

	completed, err := l.MarkPassed(rec.ID, i.now(), files.Code, files.Tests)
	if err != nil {
		return nil, err
	}
	if err := writeFiles(sess.ProjectDir, fileSet); err != nil {
		return nil, err
	}
	sha, err := i.vcs.CommitAll(ctx, sess.ProjectDir, "Implement "+rec.ID)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	sess.CommitCount++
	i.metrics.FeaturePassed(ctx)
	span.SetAttributes(attribute.String("commit", sha))
	slog.InfoContext(ctx, "feature implemented", "feature", rec.ID, "commit", sha)
	return completed, nil
}

// verify runs the command sequence up to MaxAttempts times with a constant
// backoff between attempts. Transport errors count as failed attempts.
func (i *Implementer) verify(
	ctx context.Context,
	sess *session.Session,
	featureID string,
	files map[string]string,
	commands []string,
) ([]sandbox.CommandResult, error) {
	attempt := 0
	op := func() ([]sandbox.CommandResult, error) {
		attempt++
		results, err := i.sandbox.Execute(ctx, sess.SandboxID, files, commands, i.cfg.ExecuteTimeout)
		ok := err == nil && sandbox.Succeeded(results)
		i.metrics.Verification(ctx, sess.Environment, ok)
		switch {
		case err != nil:
			return results, err
		case !ok:
			return results, fmt.Errorf("%w: %s", domain.ErrVerification, lastCommand(results))
		}
		return results, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(i.cfg.Backoff)),
		backoff.WithMaxTries(uint(i.cfg.MaxAttempts)), //nolint:gosec // MaxAttempts is >= 1
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.InfoContext(ctx, "verification attempt failed, retrying",
				"feature", featureID, "attempt", attempt, "of", i.cfg.MaxAttempts,
				"wait", wait, "error", err)
		}),
	)
}

func lastCommand(results []sandbox.CommandResult) string {
	if len(results) == 0 {
		return "no commands ran"
	}
	last := results[len(results)-1]
	return fmt.Sprintf("%q exited %d", last.Command, last.ExitCode)
}

func (i *Implementer) persistLedger(ctx context.Context, sess *session.Session, l *ledger.Ledger) error {
	if err := i.store.SaveLedger(ctx, sess.ID, l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sess.ProjectDir, ledgerFile), data, 0o644); err != nil { //nolint:gosec // workspace files are meant to be readable
		return fmt.Errorf("mirror ledger: %w", err)
	}
	return nil
}

func writeFiles(dir string, files map[string]string) error {
	for name, content := range files {
		if !filepath.IsLocal(name) {
			return fmt.Errorf("refusing to write %q outside the project", name)
		}
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // workspace files are meant to be readable
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func (i *Implementer) sessionSinks(ctx context.Context, sess *session.Session) []notifier.Sink {
	if sess.WebhookURL == "" {
		return nil
	}
	s, err := notifier.New("webhook", map[string]string{"url": sess.WebhookURL})
	if err != nil {
		slog.WarnContext(ctx, "session webhook disabled", "error", err)
		return nil
	}
	return []notifier.Sink{s}
}

func (i *Implementer) emit(ctx context.Context, sess *session.Session, typ event.Type, completed []string, sinks []notifier.Sink) {
	if i.notifier == nil {
		return
	}
	if completed == nil {
		completed = []string{}
	}
	i.notifier.Notify(ctx, event.Progress{
		Event:          typ,
		SessionID:      sess.ID,
		Passing:        sess.Progress.Passing,
		Total:          sess.Progress.Total,
		Percentage:     sess.Progress.Percentage,
		CompletedTests: completed,
		Project:        sess.Project,
		Timestamp:      i.now().UTC(),
	}, sinks...)
}

func (i *Implementer) release(ctx context.Context, h sandbox.Handle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.CleanupTimeout)
	defer cancel()
	sum, err := i.sandbox.Destroy(ctx, h)
	if err != nil {
		slog.WarnContext(ctx, "sandbox release failed", "sandbox_id", h, "error", err)
		return
	}
	slog.InfoContext(ctx, "sandbox released", "sandbox_id", h,
		"uptime", sum.Uptime, "executions", sum.ExecutionCount)
}

// Status returns the session with the live state of its sandbox. The
// sandbox state is "unknown" when the lookup fails.
func (i *Implementer) Status(ctx context.Context, id string) (session.Snapshot, error) {
	sess, err := i.store.GetSession(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	snap := session.Snapshot{Session: *sess, SandboxStatus: unknownStat}
	if st, err := i.sandbox.Status(ctx, sess.SandboxID); err == nil && st.State != "" {
		snap.SandboxStatus = st.State
	}
	return snap, nil
}

// List returns every known session.
func (i *Implementer) List(ctx context.Context) ([]session.Session, error) {
	return i.store.ListSessions(ctx)
}

// Features returns the ledger of a session in ledger order.
func (i *Implementer) Features(ctx context.Context, id string) ([]ledger.FeatureRecord, error) {
	l, err := i.store.GetLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.Records(), nil
}

// Wait blocks until every running driver has finished or ctx is done.
func (i *Implementer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.drivers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
