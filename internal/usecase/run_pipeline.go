package usecase

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
	ucreport "github.com/gauntletci/gauntlet/internal/usecase/report"
)

// Env var names jobs use to reach external services. They come from the
// environment file (usually via secrets.local.yaml).
const (
	VarUploadURL    = "upload_url"
	VarCoverageURL  = "coverage_url"
	VarCoverageFile = "coverage_file"
)

const defaultMaxParallel = 4

type RunPipeline struct {
	pipelines ports.PipelineLoader
	envs      ports.EnvironmentLoader
	runner    ports.CommandRunner
	store     ports.ArtifactStore // nil disables persistence
	uploader  ports.Uploader      // nil disables uploads

	interp      *domain.Interpolator
	log         *slog.Logger
	out         io.Writer
	workDir     string
	maxParallel int
}

type RunOption func(*RunPipeline)

func WithUploader(u ports.Uploader) RunOption {
	return func(uc *RunPipeline) { uc.uploader = u }
}

func WithInterpolator(in *domain.Interpolator) RunOption {
	return func(uc *RunPipeline) {
		if in != nil {
			uc.interp = in
		}
	}
}

func WithLogger(l *slog.Logger) RunOption {
	return func(uc *RunPipeline) {
		if l != nil {
			uc.log = l
		}
	}
}

// WithOutput sets where artifact paths are printed before upload.
func WithOutput(w io.Writer) RunOption {
	return func(uc *RunPipeline) {
		if w != nil {
			uc.out = w
		}
	}
}

// WithWorkDir sets the directory commands run in and relative paths resolve
// against (normally the workspace root).
func WithWorkDir(dir string) RunOption {
	return func(uc *RunPipeline) { uc.workDir = dir }
}

func WithMaxParallel(n int) RunOption {
	return func(uc *RunPipeline) {
		if n > 0 {
			uc.maxParallel = n
		}
	}
}

func NewRunPipeline(pl ports.PipelineLoader, el ports.EnvironmentLoader, cr ports.CommandRunner, store ports.ArtifactStore, opts ...RunOption) *RunPipeline {
	uc := &RunPipeline{
		pipelines:   pl,
		envs:        el,
		runner:      cr,
		store:       store,
		interp:      domain.NewInterpolator(),
		log:         slog.Default(),
		out:         io.Discard,
		maxParallel: defaultMaxParallel,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute expands the pipeline's matrix and runs every job. Job failures do
// not produce an error; the artifact carries per-job outcomes. The returned
// id is empty when no store is configured.
func (uc *RunPipeline) Execute(ctx context.Context, pipelinePath string, envNameOrPath string) (domain.RunArtifact, string, error) {
	p, err := uc.pipelines.LoadPipeline(pipelinePath)
	if err != nil {
		return domain.RunArtifact{}, "", err
	}

	env, err := uc.envs.LoadEnvironment(envNameOrPath)
	if err != nil {
		return domain.RunArtifact{}, "", err
	}

	jobs := p.Matrix.Expand(p.Runtimes)

	run := domain.RunArtifact{
		PipelineName:    p.Name,
		PipelinePath:    pipelinePath,
		EnvironmentName: env.Name,
		StartedAt:       time.Now(),
		Jobs:            make([]domain.JobResult, len(jobs)),
	}

	uc.log.Info("run.start",
		"pipeline", p.Name,
		"env", env.Name,
		"jobs", len(jobs),
		"max_parallel", uc.maxParallel,
	)

	var g errgroup.Group
	g.SetLimit(uc.maxParallel)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			run.Jobs[i] = uc.runJob(ctx, p, job, env)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = time.Now()

	uc.log.Info("run.finished",
		"pipeline", p.Name,
		"jobs", len(run.Jobs),
		"failed", run.FailedJobs(),
	)

	if uc.store == nil {
		return run, "", nil
	}

	id, err := uc.store.SaveRun(run)
	if err != nil {
		return run, "", err
	}
	run.ID = id
	return run, id, nil
}

// runJob executes one matrix cell: install -> files -> before_script ->
// script, then report checks, then exactly one of after_success /
// after_failure. Hook failures are recorded but never change the status.
func (uc *RunPipeline) runJob(ctx context.Context, p domain.Pipeline, job domain.Job, env domain.Environment) domain.JobResult {
	// global < matrix entry < environment < builtins.
	vars := domain.Merge(job.Vars, env.Vars)
	vars[domain.EnvRuntime] = job.Runtime
	vars[domain.EnvJobName] = job.Name

	result := domain.JobResult{
		Name:      job.Name,
		Runtime:   job.Runtime,
		Env:       vars,
		StartedAt: time.Now(),
		Extracted: domain.Vars{},
	}

	uc.log.Debug("job.start", "pipeline", p.Name, "job", job.Name)

	failed := false

	phase, ok := uc.runPhase(ctx, domain.PhaseInstall, p.Install, vars, true)
	result.Phases = append(result.Phases, phase)
	failed = failed || !ok

	if !failed {
		phase, ok = uc.writeFiles(p.Files, vars)
		result.Phases = append(result.Phases, phase)
		failed = failed || !ok
	}

	if !failed {
		phase, ok = uc.runPhase(ctx, domain.PhaseBeforeScript, p.BeforeScript, vars, true)
		result.Phases = append(result.Phases, phase)
		failed = failed || !ok
	}

	if !failed {
		// Script commands all run, even after a failure.
		phase, ok = uc.runPhase(ctx, domain.PhaseScript, p.Script, vars, false)
		result.Phases = append(result.Phases, phase)
		failed = failed || !ok
	}

	if !failed {
		checksOK := uc.applyReports(p.Reports, vars, &result)
		failed = failed || !checksOK
	}

	canceled := ctx.Err() != nil

	switch {
	case canceled:
		result.Status = domain.JobCanceled
	case failed:
		result.Status = domain.JobFailed
	default:
		result.Status = domain.JobPassed
	}

	if !canceled {
		if failed {
			phase, _ = uc.runPhase(ctx, domain.PhaseAfterFailure, p.AfterFailure, vars, false)
			result.Phases = append(result.Phases, phase)
			result.Uploads = append(result.Uploads, uc.uploadFailureArtifacts(ctx, p.Artifacts, vars)...)
		} else {
			phase, _ = uc.runPhase(ctx, domain.PhaseAfterSuccess, p.AfterSuccess, vars, false)
			result.Phases = append(result.Phases, phase)
			if up, did := uc.uploadCoverage(ctx, vars); did {
				result.Uploads = append(result.Uploads, up)
			}
		}
	}

	result.FinishedAt = time.Now()

	uc.log.Debug("job.finished", "pipeline", p.Name, "job", job.Name, "status", result.Status)
	return result
}

// runPhase executes the phase's commands sequentially. With stopOnFailure,
// the first failing command ends the phase; otherwise every command runs.
// The boolean result is false when any command failed.
func (uc *RunPipeline) runPhase(ctx context.Context, name domain.PhaseName, cmds []domain.Command, vars domain.Vars, stopOnFailure bool) (domain.PhaseResult, bool) {
	phase := domain.PhaseResult{Phase: name}
	ok := true

	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			phase.Commands = append(phase.Commands, domain.CommandResult{
				Command:  cmd,
				ExitCode: -1,
				Error:    domain.NewRunError(err),
			})
			ok = false
			if stopOnFailure {
				return phase, false
			}
			continue
		}

		res, err := uc.runner.Run(ctx, cmd, ports.ExecSpec{
			Dir: uc.workDir,
			Env: vars,
		})
		if err != nil {
			// Config-level runner error: record and treat as failed.
			res = domain.CommandResult{
				Command:  cmd,
				ExitCode: -1,
				Error:    domain.NewRunError(err),
			}
		}

		phase.Commands = append(phase.Commands, res)
		if res.Failed() {
			ok = false
			if stopOnFailure {
				break
			}
		}
	}

	return phase, ok
}

// writeFiles renders and writes the pipeline's generated files. Each write is
// recorded as a synthetic command so artifacts show what happened.
func (uc *RunPipeline) writeFiles(files []domain.FileSpec, vars domain.Vars) (domain.PhaseResult, bool) {
	phase := domain.PhaseResult{Phase: domain.PhaseFiles}
	if len(files) == 0 {
		return phase, true
	}

	rt, err := uc.interp.NewRuntime(vars)
	if err != nil {
		phase.Commands = append(phase.Commands, domain.CommandResult{
			Command:  "render files",
			ExitCode: -1,
			Error:    domain.NewRunError(err),
		})
		return phase, false
	}

	ok := true
	for _, f := range files {
		cmdRes := domain.CommandResult{Command: domain.Command("write " + f.Path)}

		resolved, rerr := rt.ResolveFile(f)
		if rerr != nil {
			cmdRes.ExitCode = -1
			cmdRes.Error = domain.NewRunError(rerr)
			phase.Commands = append(phase.Commands, cmdRes)
			ok = false
			break
		}

		path := uc.absPath(resolved.Path)
		cmdRes.Command = domain.Command("write " + path)

		mode := fs.FileMode(0o644)
		if resolved.Mode != 0 {
			mode = fs.FileMode(resolved.Mode)
		}

		werr := os.MkdirAll(filepath.Dir(path), 0o755)
		if werr == nil {
			werr = os.WriteFile(path, []byte(resolved.Content), mode)
		}
		if werr != nil {
			cmdRes.ExitCode = -1
			cmdRes.Error = domain.NewRunError(werr)
			phase.Commands = append(phase.Commands, cmdRes)
			ok = false
			break
		}

		phase.Commands = append(phase.Commands, cmdRes)
	}

	return phase, ok
}

// applyReports evaluates every report's checks and extractions, appending to
// the job result. Returns false when any check failed or a report is missing.
func (uc *RunPipeline) applyReports(reports []domain.ReportSpec, vars domain.Vars, result *domain.JobResult) bool {
	if len(reports) == 0 {
		return true
	}

	rt, err := uc.interp.NewRuntime(vars)
	if err != nil {
		result.Checks = append(result.Checks, domain.CheckResult{
			Name:    "report",
			Passed:  false,
			Message: fmt.Sprintf("resolve report paths: %v", err),
		})
		return false
	}

	ok := true
	for _, spec := range reports {
		resolved, rerr := rt.ResolveReport(spec)
		if rerr != nil {
			result.Checks = append(result.Checks, domain.CheckResult{
				Name:    "report",
				Passed:  false,
				Message: fmt.Sprintf("resolve report path %q: %v", spec.Path, rerr),
			})
			ok = false
			continue
		}

		path := uc.absPath(resolved.Path)
		body, readErr := os.ReadFile(path)
		if readErr != nil {
			result.Checks = append(result.Checks, domain.CheckResult{
				Name:    "report",
				Passed:  false,
				Message: fmt.Sprintf("read report %q: %v", path, readErr),
			})
			ok = false
			continue
		}

		checks := ucreport.Evaluate(body, resolved.Checks)
		result.Checks = append(result.Checks, checks...)
		for _, c := range checks {
			if !c.Passed {
				ok = false
			}
		}

		extracted, extracts := ucreport.Extract(body, resolved.Extract)
		result.Extracts = append(result.Extracts, extracts...)
		for k, v := range extracted {
			result.Extracted[k] = v
		}
	}

	return ok
}

// uploadFailureArtifacts collects matching files from the artifact dir and
// uploads each one, printing the path first.
func (uc *RunPipeline) uploadFailureArtifacts(ctx context.Context, spec domain.ArtifactSpec, vars domain.Vars) []domain.UploadResult {
	if spec.Dir == "" || uc.uploader == nil {
		return nil
	}

	endpoint, _ := domain.Get(vars, VarUploadURL)
	if endpoint == "" {
		uc.log.Warn("artifacts.skip", "reason", "no upload_url configured")
		return nil
	}

	rt, err := uc.interp.NewRuntime(vars)
	if err != nil {
		return []domain.UploadResult{{Success: false, Message: err.Error()}}
	}
	resolved, err := rt.ResolveArtifacts(spec)
	if err != nil {
		return []domain.UploadResult{{Success: false, Message: err.Error()}}
	}

	dir := uc.absPath(resolved.Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		uc.log.Warn("artifacts.skip", "dir", dir, "error", err)
		return nil
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if match, _ := filepath.Match(resolved.Glob, e.Name()); match {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var out []domain.UploadResult
	for _, p := range paths {
		fmt.Fprintln(uc.out, p)

		url, uerr := uc.uploader.UploadFile(ctx, endpoint, p)
		up := domain.UploadResult{Path: p, URL: url, Success: uerr == nil}
		if uerr != nil {
			up.Message = uerr.Error()
			uc.log.Warn("artifacts.upload_failed", "path", p, "error", uerr)
		}
		out = append(out, up)
	}
	return out
}

// uploadCoverage posts the coverage file on success when the environment
// names both the endpoint and the file.
func (uc *RunPipeline) uploadCoverage(ctx context.Context, vars domain.Vars) (domain.UploadResult, bool) {
	if uc.uploader == nil {
		return domain.UploadResult{}, false
	}

	endpoint, _ := domain.Get(vars, VarCoverageURL)
	file, _ := domain.Get(vars, VarCoverageFile)
	if endpoint == "" || file == "" {
		return domain.UploadResult{}, false
	}

	path := uc.absPath(file)
	url, err := uc.uploader.UploadFile(ctx, endpoint, path)
	up := domain.UploadResult{Path: path, URL: url, Success: err == nil}
	if err != nil {
		up.Message = err.Error()
		uc.log.Warn("coverage.upload_failed", "path", path, "error", err)
	}
	return up, true
}

func (uc *RunPipeline) absPath(p string) string {
	if filepath.IsAbs(p) || uc.workDir == "" {
		return p
	}
	return filepath.Join(uc.workDir, p)
}
