package shellrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
)

const defaultMaxOutputBytes = 256 * 1024 // 256KB

// POSIX "command not found" exit status from the shell.
const exitNotFound = 127

type Runner struct {
	shell          []string
	maxOutputBytes int64
	inheritEnv     bool
}

type Option func(*Runner)

func WithShell(argv ...string) Option {
	return func(r *Runner) {
		if len(argv) > 0 {
			r.shell = argv
		}
	}
}

func WithMaxOutputBytes(n int64) Option {
	return func(r *Runner) { r.maxOutputBytes = n }
}

// WithInheritEnv controls whether the parent process env is passed through.
// Disabled in tests that need hermetic environments.
func WithInheritEnv(inherit bool) Option {
	return func(r *Runner) { r.inheritEnv = inherit }
}

func New(opts ...Option) *Runner {
	r := &Runner{
		shell:          []string{"/bin/sh", "-c"},
		maxOutputBytes: defaultMaxOutputBytes,
		inheritEnv:     true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.CommandRunner = (*Runner)(nil)

// Run executes one command through the configured shell. Runtime failures
// (non-zero exit, missing binary, timeout) are reported on the result; a
// non-nil error is reserved for config-level problems.
func (r *Runner) Run(ctx context.Context, cmd domain.Command, spec ports.ExecSpec) (domain.CommandResult, error) {
	result := domain.CommandResult{Command: cmd}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(spec.Timeout)*time.Millisecond)
		defer cancel()
	}

	argv := append(append([]string{}, r.shell...), string(cmd))
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = spec.Dir
	c.Env = buildEnv(r.inheritEnv, spec.Env)

	out := newBoundedBuffer(r.maxOutputBytes)
	c.Stdout = out
	c.Stderr = out

	start := time.Now()
	runErr := c.Run()
	result.DurationMS = time.Since(start).Milliseconds()

	result.Output = out.Bytes()
	result.Truncated = out.Truncated()

	if runErr == nil {
		return result, nil
	}

	// Context errors take precedence: an exit status caused by a kill signal
	// should surface as timeout/canceled, not as a plain exit failure.
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind := domain.RunErrorCanceled
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			kind = domain.RunErrorTimeout
		}
		result.ExitCode = -1
		result.Error = &domain.RunError{Kind: kind, Message: runErr.Error()}
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		kind := domain.RunErrorExit
		// POSIX sh exits 127 when the command inside -c does not exist;
		// exec.ErrNotFound below only covers a missing shell binary.
		if result.ExitCode == exitNotFound {
			kind = domain.RunErrorNotFound
		}
		result.Error = &domain.RunError{Kind: kind, Message: runErr.Error()}
	case errors.Is(runErr, exec.ErrNotFound):
		result.ExitCode = -1
		result.Error = &domain.RunError{Kind: domain.RunErrorNotFound, Message: runErr.Error()}
	default:
		result.ExitCode = -1
		result.Error = domain.NewRunError(runErr)
	}

	return result, nil
}

// buildEnv merges job vars over the parent env with deterministic ordering.
func buildEnv(inherit bool, vars domain.Vars) []string {
	var env []string
	if inherit {
		env = os.Environ()
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// boundedBuffer captures combined output up to a byte limit. Stdout and
// stderr share it, so writes are serialized.
type boundedBuffer struct {
	mu        sync.Mutex
	max       int64
	buf       []byte
	truncated bool
}

func newBoundedBuffer(max int64) *boundedBuffer {
	if max <= 0 {
		max = defaultMaxOutputBytes
	}
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - int64(len(b.buf))
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}

	if int64(len(p)) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}

	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
