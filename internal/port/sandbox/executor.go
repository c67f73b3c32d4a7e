// Package sandbox defines the port for the external ephemeral execution environment.
package sandbox

import (
	"context"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
)

// Executor creates, drives and releases sandboxes. Execute stops at the
// first command that exits non-zero; the returned slice ends with that command.
type Executor interface {
	Create(ctx context.Context, environment string, timeout time.Duration) (sandbox.Handle, error)
	Execute(ctx context.Context, h sandbox.Handle, files map[string]string, commands []string, timeout time.Duration) ([]sandbox.CommandResult, error)
	Status(ctx context.Context, h sandbox.Handle) (sandbox.Status, error)
	Destroy(ctx context.Context, h sandbox.Handle) (sandbox.Summary, error)
}
