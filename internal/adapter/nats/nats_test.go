package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain/event"
	"github.com/Strob0t/CodeCouncil/internal/logger"
	"github.com/Strob0t/CodeCouncil/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

type fakeQueue struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (f *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return messagequeue.Validate(subject, data)
}

func (f *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (f *fakeQueue) Close() error      { return nil }
func (f *fakeQueue) IsConnected() bool { return true }

func TestProgressSinkPublishesPerSession(t *testing.T) {
	q := &fakeQueue{}
	sink := NewProgressSink(q)

	err := sink.Notify(context.Background(), event.Progress{
		Event:      event.TypeTestProgress,
		SessionID:  "session-7",
		Passing:    2,
		Total:      4,
		Percentage: 50,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(q.subjects) != 1 || q.subjects[0] != "council.progress.session-7" {
		t.Fatalf("unexpected subjects %v", q.subjects)
	}
	var p messagequeue.ProgressPayload
	if err := json.Unmarshal(q.payloads[0], &p); err != nil {
		t.Fatal(err)
	}
	if p.Event != "test_progress" || p.Passing != 2 || p.Percentage != 50 {
		t.Errorf("unexpected payload %+v", p)
	}
	if sink.Name() != "nats" {
		t.Errorf("unexpected name %q", sink.Name())
	}
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := messagequeue.ProgressSubject("test-" + t.Name())

	got := make(chan string, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, data []byte) error {
		got <- logger.RequestID(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), "req-42")
	data := []byte(`{"event":"test_progress","session_id":"s","passing":0,"total":1,"percentage":0}`)
	if err := q.Publish(ctx, subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != "req-42" {
			t.Errorf("request id not propagated, got %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	if !q.IsConnected() {
		t.Error("expected connected queue")
	}
}

func TestQueue_PublishRejectsInvalid(t *testing.T) {
	q := testConnect(t)
	if err := q.Publish(context.Background(), messagequeue.SubjectPlanComplete, []byte("{nope")); err == nil {
		t.Fatal("expected validation error")
	}
}
