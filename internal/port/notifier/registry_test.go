package notifier

import (
	"context"
	"testing"

	"github.com/Strob0t/CodeCouncil/internal/domain/event"
)

type stubSink struct{ name string }

func (s *stubSink) Name() string                                 { return s.name }
func (s *stubSink) Notify(_ context.Context, _ event.Progress) error { return nil }

func TestRegistryRoundTrip(t *testing.T) {
	Register("test-stub", func(cfg map[string]string) (Sink, error) {
		if cfg["url"] == "" {
			return nil, ErrNotConfigured
		}
		return &stubSink{name: "test-stub"}, nil
	})

	if _, err := New("test-stub", nil); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	s, err := New("test-stub", map[string]string{"url": "http://example.com"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != "test-stub" {
		t.Errorf("unexpected name %q", s.Name())
	}

	found := false
	for _, n := range Available() {
		if n == "test-stub" {
			found = true
		}
	}
	if !found {
		t.Error("expected test-stub in Available()")
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("does-not-exist", nil); err == nil {
		t.Fatal("expected error for unknown sink")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("dup-stub", func(map[string]string) (Sink, error) { return &stubSink{}, nil })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("dup-stub", func(map[string]string) (Sink, error) { return &stubSink{}, nil })
}
