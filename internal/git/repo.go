package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo commits generated project files. Each feature that passes its
// tests becomes one commit.
type Repo struct {
	pool        *Pool
	authorName  string
	authorEmail string
}

// NewRepo returns a Repo that runs git through pool with a fixed identity.
func NewRepo(pool *Pool, authorName, authorEmail string) *Repo {
	return &Repo{pool: pool, authorName: authorName, authorEmail: authorEmail}
}

// Init creates a repository in dir unless one already exists.
func (r *Repo) Init(ctx context.Context, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return nil
	}
	_, err := r.run(ctx, dir, "init", "--quiet")
	return err
}

// CommitAll stages every file in dir and commits it with msg, returning
// the new commit hash.
func (r *Repo) CommitAll(ctx context.Context, dir, msg string) (string, error) {
	if err := r.Init(ctx, dir); err != nil {
		return "", fmt.Errorf("git init: %w", err)
	}
	if _, err := r.run(ctx, dir, "add", "."); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	if _, err := r.run(ctx, dir, "commit", "--quiet", "--allow-empty", "-m", msg); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	out, err := r.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (r *Repo) run(ctx context.Context, dir string, args ...string) (string, error) {
	var out string
	err := r.pool.Run(ctx, func() error {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME="+r.authorName,
			"GIT_AUTHOR_EMAIL="+r.authorEmail,
			"GIT_COMMITTER_NAME="+r.authorName,
			"GIT_COMMITTER_EMAIL="+r.authorEmail,
		)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return err
			}
			return fmt.Errorf("%s: %w", msg, err)
		}
		out = stdout.String()
		return nil
	})
	return out, err
}

// ErrGitMissing is returned by Available when no git binary is on PATH.
var ErrGitMissing = errors.New("git executable not found")

// Available reports whether the git CLI can be executed.
func Available() error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitMissing
	}
	return nil
}
