package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	_ = c.Set(ctx, "k", []byte(`{"overall_score":81}`), time.Minute)
	c.Wait()

	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(got) != `{"overall_score":81}` {
		t.Errorf("unexpected value %s", got)
	}

	_ = c.Delete(ctx, "k")
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestNewClampsSize(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New(0): %v", err)
	}
	c.Close()
}
