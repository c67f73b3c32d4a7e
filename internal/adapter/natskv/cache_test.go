package natskv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// fakeKV implements the subset of jetstream.KeyValue the cache uses.
type fakeKV struct {
	jetstream.KeyValue
	data   map[string][]byte
	getErr error
}

type fakeEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e fakeEntry) Value() []byte { return e.value }

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{value: v}, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func (f *fakeKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	if _, ok := f.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(f.data, key)
	return nil
}

func TestCacheRoundTripWithPrefix(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}}
	c := New(kv, "report")
	ctx := context.Background()

	if err := c.Set(ctx, "abc", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := kv.data["report.abc"]; !ok {
		t.Fatalf("expected prefixed key, got %v", kv.data)
	}

	v, ok, err := c.Get(ctx, "abc")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	if err := c.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, "abc"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestCacheMissAndError(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}}
	c := New(kv, "")

	_, ok, err := c.Get(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	kv.getErr = errors.New("connection closed")
	if _, _, err := c.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error to surface")
	}
}
