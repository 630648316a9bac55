package ports

import (
	"context"

	"github.com/gauntletci/gauntlet/internal/domain"
)

// ExecSpec carries the execution context for a single command: working
// directory, the job's merged variable set and an optional per-command timeout.
type ExecSpec struct {
	Dir     string
	Env     domain.Vars
	Timeout int64 // milliseconds; zero means no per-command timeout
}

// CommandRunner executes a single shell command.
type CommandRunner interface {
	Run(ctx context.Context, cmd domain.Command, spec ExecSpec) (domain.CommandResult, error)
}
