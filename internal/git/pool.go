// Package git runs the git CLI for generated projects.
package git

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of git processes running at once across all
// implementation sessions.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a Pool admitting at most limit concurrent operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run waits for a free slot, then runs fn. A nil Pool runs fn unbounded.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
