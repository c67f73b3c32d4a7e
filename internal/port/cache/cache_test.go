package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/port/cache"
)

type memCache struct {
	data   map[string][]byte
	getErr error
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type report struct {
	Score int    `json:"score"`
	Gate  string `json:"gate"`
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := newMemCache()

	if _, ok := cache.GetJSON[report](ctx, c, "r1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.SetJSON(ctx, c, "r1", report{Score: 82, Gate: "passed"}, time.Minute)

	got, ok := cache.GetJSON[report](ctx, c, "r1")
	if !ok {
		t.Fatal("expected hit after SetJSON")
	}
	if got.Score != 82 || got.Gate != "passed" {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestGetJSONTreatsFailuresAsMiss(t *testing.T) {
	ctx := context.Background()

	c := newMemCache()
	c.data["bad"] = []byte("{not json")
	if _, ok := cache.GetJSON[report](ctx, c, "bad"); ok {
		t.Error("undecodable entry should be a miss")
	}

	c.getErr = errors.New("backend down")
	if _, ok := cache.GetJSON[report](ctx, c, "bad"); ok {
		t.Error("backend error should be a miss")
	}

	if _, ok := cache.GetJSON[report](ctx, nil, "any"); ok {
		t.Error("nil cache should be a miss")
	}
	cache.SetJSON(ctx, nil, "any", report{}, time.Minute)
}
