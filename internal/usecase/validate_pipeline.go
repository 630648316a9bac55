package usecase

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
)

type ValidatePipeline struct {
	pipelines ports.PipelineLoader
	envs      ports.EnvironmentLoader
	interp    *domain.Interpolator
	hostEnv   func(string) (string, bool)
}

type ValidateOption func(*ValidatePipeline)

func WithValidateInterpolator(in *domain.Interpolator) ValidateOption {
	return func(uc *ValidatePipeline) {
		if in != nil {
			uc.interp = in
		}
	}
}

// WithHostEnv overrides the host environment lookup used for shell var
// reference checks. Tests inject a fixed map.
func WithHostEnv(lookup func(string) (string, bool)) ValidateOption {
	return func(uc *ValidatePipeline) {
		if lookup != nil {
			uc.hostEnv = lookup
		}
	}
}

func NewValidatePipeline(pl ports.PipelineLoader, el ports.EnvironmentLoader, opts ...ValidateOption) *ValidatePipeline {
	uc := &ValidatePipeline{
		pipelines: pl,
		envs:      el,
		interp:    domain.NewInterpolator(),
		hostEnv:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute validates a pipeline + environment pair without running any
// commands. It checks matrix shape, resolves every templated field for every
// expanded job and confirms the script phase is not empty.
func (uc *ValidatePipeline) Execute(ctx context.Context, pipelinePath string, envNameOrPath string) error {
	p, err := uc.pipelines.LoadPipeline(pipelinePath)
	if err != nil {
		return err
	}

	env, err := uc.envs.LoadEnvironment(envNameOrPath)
	if err != nil {
		return err
	}

	if len(p.Script) == 0 {
		return &domain.OpError{
			Op:   "pipeline.validate",
			Kind: domain.KindInvalidConfig,
			Path: pipelinePath,
			Err:  fmt.Errorf("pipeline %q has no script commands", p.Name),
		}
	}

	if idx, diff, ok := p.Matrix.ConsistentKeys(); !ok {
		return &domain.OpError{
			Op:   "pipeline.validate",
			Kind: domain.KindInvalidConfig,
			Path: pipelinePath,
			Err: fmt.Errorf("matrix entry %d differs in variables: %s",
				idx+1, strings.Join(diff, ", ")),
		}
	}

	for _, job := range p.Matrix.Expand(p.Runtimes) {
		if err := ctx.Err(); err != nil {
			return err
		}

		vars := domain.Merge(job.Vars, env.Vars)
		vars[domain.EnvRuntime] = job.Runtime
		vars[domain.EnvJobName] = job.Name

		rt, err := uc.interp.NewRuntime(vars)
		if err != nil {
			return err
		}

		for _, f := range p.Files {
			if _, err := rt.ResolveFile(f); err != nil {
				return fmt.Errorf("job %q: file %q: %w", job.Name, f.Path, err)
			}
		}
		for _, r := range p.Reports {
			if _, err := rt.ResolveReport(r); err != nil {
				return fmt.Errorf("job %q: report %q: %w", job.Name, r.Path, err)
			}
		}
		if p.Artifacts.Dir != "" {
			if _, err := rt.ResolveArtifacts(p.Artifacts); err != nil {
				return fmt.Errorf("job %q: artifacts %q: %w", job.Name, p.Artifacts.Dir, err)
			}
		}

		if err := uc.checkShellRefs(p.Install, vars); err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
	}

	return nil
}

var reShellVar = regexp.MustCompile(`\$\{?([A-Z][A-Z0-9_]*)\}?`)

// checkShellRefs verifies that every $NAME reference in install commands
// resolves from job vars or the host environment, so a typo'd pin variable
// fails validation instead of silently expanding to "".
func (uc *ValidatePipeline) checkShellRefs(cmds []domain.Command, vars domain.Vars) error {
	for _, cmd := range cmds {
		for _, m := range reShellVar.FindAllStringSubmatch(string(cmd), -1) {
			name := m[1]
			if _, ok := vars[name]; ok {
				continue
			}
			if _, ok := uc.hostEnv(name); ok {
				continue
			}
			return &domain.OpError{
				Op:   "pipeline.validate",
				Kind: domain.KindMissingVar,
				Err:  fmt.Errorf("install references undefined variable $%s", name),
			}
		}
	}
	return nil
}
