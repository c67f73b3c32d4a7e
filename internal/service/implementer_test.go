package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/event"
	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/port/notifier"
)

type implFixture struct {
	impl   *Implementer
	store  *mockStore
	exec   *mockExecutor
	vcs    *mockCommitter
	sink   *recordingSink
	notify *ProgressNotifier
	root   string
}

func newImplFixture(t *testing.T, exec *mockExecutor, gen CodeGenerator, maxIter int) *implFixture {
	t.Helper()
	f := &implFixture{
		store: newMockStore(),
		exec:  exec,
		vcs:   &mockCommitter{},
		sink:  &recordingSink{name: "recorder"},
		root:  t.TempDir(),
	}
	f.notify = NewProgressNotifier([]notifier.Sink{f.sink}, 16, time.Second)
	f.impl = NewImplementer(ImplementerConfig{
		WorkspaceRoot:      f.root,
		DefaultEnvironment: sandbox.EnvNode,
		MaxIterations:      maxIter,
		MaxAttempts:        3,
		Backoff:            0,
		SandboxLifetime:    time.Hour,
		ExecuteTimeout:     time.Minute,
	}, f.store, exec, gen, f.vcs, f.notify, nil)
	return f
}

// finish waits for every driver and flushes pending progress events.
func (f *implFixture) finish(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.impl.Wait(ctx); err != nil {
		t.Fatalf("drivers did not finish: %v", err)
	}
	f.notify.Close()
}

func twoFeaturePlan() council.Plan {
	return council.Plan{Features: []council.FeatureSpec{
		{ID: "a", Description: "Feature A", TestCases: []string{"works"}},
		{ID: "b", Description: "Feature B", TestCases: []string{"also works"}},
	}}
}

// passAOnly passes feature a on its first attempt and always fails feature b.
func passAOnly(files map[string]string, _ int) ([]sandbox.CommandResult, error) {
	if _, ok := files["a.code"]; ok {
		return passResult("Tests: 1 passed, 1 total"), nil
	}
	return failResult("Tests: 1 failed, 1 total"), nil
}

func TestImplementerPartialSuccess(t *testing.T) {
	f := newImplFixture(t, newMockExecutor(passAOnly), stubGenerator{}, 50)

	res, err := f.impl.Start(context.Background(), StartRequest{Plan: twoFeaturePlan(), Project: "shop"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(res.SessionID, "session-") || res.Status != session.StatusStarted {
		t.Errorf("unexpected start result %+v", res)
	}
	if res.ProjectDir != filepath.Join(f.root, "shop") || res.SandboxID != "sbx-nodejs-18" {
		t.Errorf("unexpected workspace/sandbox %+v", res)
	}
	f.finish(t)

	snap, err := f.impl.Status(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != session.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Error)
	}
	want := ledger.Progress{Passing: 1, Total: 2, Percentage: 50.0}
	if snap.Progress != want {
		t.Errorf("expected %+v, got %+v", want, snap.Progress)
	}
	if snap.CommitCount != 1 || snap.SandboxStatus != "running" {
		t.Errorf("unexpected commits/sandbox %d %s", snap.CommitCount, snap.SandboxStatus)
	}
	if snap.LastTestResults == nil || snap.LastTestResults.Failed != 1 {
		t.Errorf("expected last test results from feature b, got %+v", snap.LastTestResults)
	}

	executes, destroyed := f.exec.counts()
	if executes != 4 {
		t.Errorf("expected 1 + 3 attempts, got %d", executes)
	}
	if destroyed != 1 {
		t.Errorf("sandbox must be released exactly once, got %d", destroyed)
	}
	if got := f.vcs.commits(); len(got) != 1 || got[0] != "Implement a" {
		t.Errorf("unexpected commits %v", got)
	}
	if f.vcs.inits != 1 {
		t.Errorf("expected one repository init, got %d", f.vcs.inits)
	}

	if _, err := os.Stat(filepath.Join(res.ProjectDir, "a.code")); err != nil {
		t.Errorf("passing feature files should be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.ProjectDir, "b.code")); !os.IsNotExist(err) {
		t.Errorf("failing feature files must not be written, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(res.ProjectDir, planFile)); err != nil {
		t.Errorf("plan file missing: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(res.ProjectDir, ledgerFile))
	if err != nil {
		t.Fatalf("read ledger mirror: %v", err)
	}
	var records []ledger.FeatureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode ledger mirror: %v", err)
	}
	if len(records) != 2 || !records[0].Passes || records[0].ImplementedAt == nil || records[1].Passes {
		t.Errorf("unexpected ledger mirror %+v", records)
	}

	feats, err := f.impl.Features(context.Background(), res.SessionID)
	if err != nil || len(feats) != 2 || !feats[0].Passes {
		t.Errorf("unexpected stored ledger %+v, err=%v", feats, err)
	}

	events := f.sink.received()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event != event.TypeTestProgress || len(events[0].CompletedTests) != 1 || events[0].CompletedTests[0] != "[General] works" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if len(events[1].CompletedTests) != 0 {
		t.Errorf("failed feature should report no completed tests, got %v", events[1].CompletedTests)
	}
	last := events[2]
	if last.Event != event.TypeImplementationComplete || last.Percentage != 50.0 || last.Project != "shop" {
		t.Errorf("unexpected final event %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Passing < events[i-1].Passing || events[i].Total != 2 {
			t.Errorf("events not monotonic at %d: %+v", i, events)
		}
	}
}

func TestImplementerTransportErrorsCountAsAttempts(t *testing.T) {
	exec := newMockExecutor(func(_ map[string]string, attempt int) ([]sandbox.CommandResult, error) {
		if attempt < 3 {
			return nil, errors.New("sandbox unreachable")
		}
		return passResult(""), nil
	})
	f := newImplFixture(t, exec, stubGenerator{}, 50)

	plan := council.Plan{Features: []council.FeatureSpec{{ID: "only", Description: "Only"}}}
	res, err := f.impl.Start(context.Background(), StartRequest{Plan: plan, Project: "p"})
	if err != nil {
		t.Fatal(err)
	}
	f.finish(t)

	snap, _ := f.impl.Status(context.Background(), res.SessionID)
	if snap.Progress.Passing != 1 {
		t.Errorf("feature should pass on the third attempt, got %+v", snap.Progress)
	}
	if executes, _ := exec.counts(); executes != 3 {
		t.Errorf("expected 3 attempts, got %d", executes)
	}
}

func TestImplementerIterationCap(t *testing.T) {
	exec := newMockExecutor(func(map[string]string, int) ([]sandbox.CommandResult, error) {
		return passResult(""), nil
	})
	f := newImplFixture(t, exec, stubGenerator{}, 50)

	res, err := f.impl.Start(context.Background(), StartRequest{Plan: twoFeaturePlan(), Project: "capped", MaxIterations: 1})
	if err != nil {
		t.Fatal(err)
	}
	f.finish(t)

	snap, _ := f.impl.Status(context.Background(), res.SessionID)
	if snap.Status != session.StatusCompleted || snap.Progress.Passing != 1 || snap.Progress.Total != 2 || snap.Progress.Percentage != 50 {
		t.Errorf("unexpected capped session %+v", snap.Session)
	}
	if executes, _ := exec.counts(); executes != 1 {
		t.Errorf("expected a single verification, got %d", executes)
	}
}

func TestImplementerFaultFailsSession(t *testing.T) {
	f := newImplFixture(t, newMockExecutor(passAOnly), stubGenerator{err: errBoom}, 50)

	res, err := f.impl.Start(context.Background(), StartRequest{Plan: twoFeaturePlan(), Project: "broken"})
	if err != nil {
		t.Fatal(err)
	}
	f.finish(t)

	snap, err := f.impl.Status(context.Background(), res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != session.StatusFailed || !strings.Contains(snap.Error, "boom") {
		t.Errorf("expected failed session with error, got %s %q", snap.Status, snap.Error)
	}
	if _, destroyed := f.exec.counts(); destroyed != 1 {
		t.Errorf("sandbox must be released exactly once, got %d", destroyed)
	}
	for _, ev := range f.sink.received() {
		if ev.Event == event.TypeImplementationComplete {
			t.Error("a failed session must not report completion")
		}
	}
}

func TestImplementerStartValidation(t *testing.T) {
	exec := newMockExecutor(passAOnly)
	f := newImplFixture(t, exec, stubGenerator{}, 50)
	ctx := context.Background()

	bad := []StartRequest{
		{Plan: twoFeaturePlan(), Project: "../escape"},
		{Plan: twoFeaturePlan(), Project: ""},
		{Plan: council.Plan{}, Project: "empty"},
		{Plan: council.Plan{Features: []council.FeatureSpec{{ID: "x"}, {ID: "x"}}}, Project: "dup"},
		{Plan: council.Plan{Features: []council.FeatureSpec{{ID: "../../escape"}, {ID: "ok"}}}, Project: "traversal"},
	}
	for _, req := range bad {
		if _, err := f.impl.Start(ctx, req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("project %q: expected ErrValidation, got %v", req.Project, err)
		}
	}

	exec.createErr = errors.New("no capacity")
	if _, err := f.impl.Start(ctx, StartRequest{Plan: twoFeaturePlan(), Project: "ok"}); err == nil {
		t.Error("expected sandbox creation error")
	}

	list, _ := f.impl.List(ctx)
	if len(list) != 0 {
		t.Errorf("no session should be registered, got %d", len(list))
	}
	f.finish(t)
}

func TestImplementerStatus(t *testing.T) {
	exec := newMockExecutor(passAOnly)
	f := newImplFixture(t, exec, stubGenerator{}, 50)

	if _, err := f.impl.Status(context.Background(), "session-missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	res, err := f.impl.Start(context.Background(), StartRequest{Plan: twoFeaturePlan(), Project: "s"})
	if err != nil {
		t.Fatal(err)
	}
	f.finish(t)

	exec.statusErr = errors.New("gone")
	snap, err := f.impl.Status(context.Background(), res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.SandboxStatus != "unknown" {
		t.Errorf("expected unknown sandbox status, got %s", snap.SandboxStatus)
	}
}
