package usecase

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
)

type fakePipelineLoader struct {
	pipeline domain.Pipeline
	err      error
	gotPath  string
}

func (f *fakePipelineLoader) LoadPipeline(path string) (domain.Pipeline, error) {
	f.gotPath = path
	return f.pipeline, f.err
}

func (f *fakePipelineLoader) ListPipelines(string) ([]domain.PipelineRef, error) {
	return nil, nil
}

type fakeEnvLoader struct {
	env domain.Environment
	err error
}

func (f *fakeEnvLoader) LoadEnvironment(string) (domain.Environment, error) {
	return f.env, f.err
}

// scriptedRunner returns canned results per command and records every call.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[domain.Command]domain.CommandResult
	calls   []domain.Command
	envs    []domain.Vars
}

func (r *scriptedRunner) Run(_ context.Context, cmd domain.Command, spec ports.ExecSpec) (domain.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	r.envs = append(r.envs, spec.Env)
	if res, ok := r.results[cmd]; ok {
		res.Command = cmd
		return res, nil
	}
	return domain.CommandResult{Command: cmd, ExitCode: 0}, nil
}

func (r *scriptedRunner) commands() []domain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Command(nil), r.calls...)
}

type fakeStore struct {
	saved *domain.RunArtifact
	id    string
	err   error
}

func (f *fakeStore) SaveRun(run domain.RunArtifact) (string, error) {
	f.saved = &run
	return f.id, f.err
}

type fakeUploader struct {
	mu        sync.Mutex
	endpoints []string
	paths     []string
	url       string
	err       error
}

func (f *fakeUploader) UploadFile(_ context.Context, endpoint, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints = append(f.endpoints, endpoint)
	f.paths = append(f.paths, path)
	return f.url, f.err
}

func failExit(code int) domain.CommandResult {
	return domain.CommandResult{
		ExitCode: code,
		Error:    &domain.RunError{Kind: domain.RunErrorExit, Message: "exit status"},
	}
}

func singleJobPipeline(name string) domain.Pipeline {
	return domain.Pipeline{
		Name:     name,
		Runtimes: []string{"3.6"},
		Install:  []domain.Command{"pip install numpy$NUMPY"},
		Script:   []domain.Command{"pytest", "coverage report"},
	}
}

func TestRunPipeline_AllJobsPass(t *testing.T) {
	p := domain.Pipeline{
		Name:     "ci",
		Runtimes: []string{"3.5", "3.6"},
		Matrix: domain.MatrixSpec{
			Entries: []domain.MatrixEntry{
				{Keys: []string{"NUMPY"}, Vars: domain.Vars{"NUMPY": "==1.15"}},
				{Keys: []string{"NUMPY"}, Vars: domain.Vars{"NUMPY": ""}},
			},
		},
		Install:      []domain.Command{"pip install numpy$NUMPY"},
		Script:       []domain.Command{"pytest"},
		AfterSuccess: []domain.Command{"coverage xml"},
	}

	runner := &scriptedRunner{}
	store := &fakeStore{id: "20260829T120000Z_ci"}
	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		runner,
		store,
	)

	run, id, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	assert.Equal(t, "20260829T120000Z_ci", id)
	assert.Equal(t, "ci", run.PipelineName)
	assert.Equal(t, "local", run.EnvironmentName)
	require.Len(t, run.Jobs, 4)
	assert.Equal(t, 0, run.FailedJobs())

	for _, job := range run.Jobs {
		assert.Equal(t, domain.JobPassed, job.Status)
		// install, files, before_script, script, after_success
		require.Len(t, job.Phases, 5)
		assert.Equal(t, domain.PhaseAfterSuccess, job.Phases[4].Phase)
	}

	require.NotNil(t, store.saved)
	assert.Len(t, store.saved.Jobs, 4)
	// 4 jobs x (install + script + after_success)
	assert.Len(t, runner.commands(), 12)
}

func TestRunPipeline_JobEnvCarriesRuntimeAndName(t *testing.T) {
	runner := &scriptedRunner{}
	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: singleJobPipeline("ci")},
		&fakeEnvLoader{env: domain.Environment{Name: "local", Vars: domain.Vars{"HOME_DIR": "/tmp"}}},
		runner,
		nil,
	)

	run, id, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	assert.Empty(t, id, "no store configured")
	require.Len(t, run.Jobs, 1)

	env := run.Jobs[0].Env
	assert.Equal(t, "3.6", env[domain.EnvRuntime])
	assert.Equal(t, "3.6 #1", env[domain.EnvJobName])
	assert.Equal(t, "/tmp", env["HOME_DIR"])
}

func TestRunPipeline_ScriptRunsAllCommandsAfterFailure(t *testing.T) {
	p := domain.Pipeline{
		Name:         "ci",
		Script:       []domain.Command{"pytest", "coverage report"},
		AfterFailure: []domain.Command{"ls results"},
	}
	runner := &scriptedRunner{results: map[domain.Command]domain.CommandResult{
		"pytest": failExit(1),
	}}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		runner,
		nil,
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	require.Len(t, run.Jobs, 1)

	job := run.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, []domain.Command{"pytest", "coverage report", "ls results"}, runner.commands())

	last := job.Phases[len(job.Phases)-1]
	assert.Equal(t, domain.PhaseAfterFailure, last.Phase)
}

func TestRunPipeline_InstallStopsAtFirstFailure(t *testing.T) {
	p := domain.Pipeline{
		Name:    "ci",
		Install: []domain.Command{"pip install a", "pip install b"},
		Script:  []domain.Command{"pytest"},
	}
	runner := &scriptedRunner{results: map[domain.Command]domain.CommandResult{
		"pip install a": failExit(1),
	}}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		runner,
		nil,
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)

	job := run.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	// Neither the second install command nor the script ran.
	assert.Equal(t, []domain.Command{"pip install a"}, runner.commands())
	require.Len(t, job.Phases, 2)
	assert.Equal(t, domain.PhaseInstall, job.Phases[0].Phase)
	assert.Equal(t, domain.PhaseAfterFailure, job.Phases[1].Phase)
	assert.Empty(t, job.Phases[1].Commands)
}

func TestRunPipeline_HookFailureDoesNotChangeStatus(t *testing.T) {
	p := domain.Pipeline{
		Name:         "ci",
		Script:       []domain.Command{"pytest"},
		AfterSuccess: []domain.Command{"curl coverage"},
	}
	runner := &scriptedRunner{results: map[domain.Command]domain.CommandResult{
		"curl coverage": failExit(7),
	}}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		runner,
		nil,
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)

	job := run.Jobs[0]
	assert.Equal(t, domain.JobPassed, job.Status)

	hook := job.Phases[len(job.Phases)-1]
	assert.Equal(t, domain.PhaseAfterSuccess, hook.Phase)
	assert.True(t, hook.Failed())
}

func TestRunPipeline_WritesGeneratedFiles(t *testing.T) {
	dir := t.TempDir()
	p := domain.Pipeline{
		Name: "ci",
		Files: []domain.FileSpec{
			{Path: "{{results_dir}}/matplotlibrc", Content: "backend : Agg\n"},
		},
		Script: []domain.Command{"pytest"},
	}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{
			Name: "local",
			Vars: domain.Vars{"results_dir": "results"},
		}},
		&scriptedRunner{},
		nil,
		WithWorkDir(dir),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	assert.Equal(t, domain.JobPassed, run.Jobs[0].Status)

	body, err := os.ReadFile(filepath.Join(dir, "results", "matplotlibrc"))
	require.NoError(t, err)
	assert.Equal(t, "backend : Agg\n", string(body))
}

func TestRunPipeline_FileWithUnknownVarFailsJob(t *testing.T) {
	p := domain.Pipeline{
		Name: "ci",
		Files: []domain.FileSpec{
			{Path: "{{missing}}/rc", Content: "x"},
		},
		Script: []domain.Command{"pytest"},
	}
	runner := &scriptedRunner{}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		runner,
		nil,
		WithWorkDir(t.TempDir()),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, run.Jobs[0].Status)
	// Script never ran.
	assert.Empty(t, runner.commands())
}

func TestRunPipeline_ReportCheckFailureFailsJob(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(`{"failures": 2, "coverage": {"percent": 81.5}}`), 0o644))

	failures := "0"
	p := domain.Pipeline{
		Name:   "ci",
		Script: []domain.Command{"pytest"},
		Reports: []domain.ReportSpec{{
			Path: "report.json",
			Checks: map[string]domain.CheckSpec{
				"$.failures": {Eq: &failures},
			},
			Extract: map[string]string{
				"coverage": "$.coverage.percent",
			},
		}},
	}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		&scriptedRunner{},
		nil,
		WithWorkDir(dir),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)

	job := run.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	require.NotEmpty(t, job.Checks)
	assert.False(t, job.Checks[0].Passed)
	assert.Equal(t, "81.5", job.Extracted["coverage"])
}

func TestRunPipeline_MissingReportFailsJob(t *testing.T) {
	p := domain.Pipeline{
		Name:   "ci",
		Script: []domain.Command{"pytest"},
		Reports: []domain.ReportSpec{{
			Path:   "nope.json",
			Checks: map[string]domain.CheckSpec{"$.ok": {Exists: true}},
		}},
	}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		&scriptedRunner{},
		nil,
		WithWorkDir(t.TempDir()),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, run.Jobs[0].Status)
}

func TestRunPipeline_UploadsFailureArtifacts(t *testing.T) {
	dir := t.TempDir()
	resultsDir := filepath.Join(dir, "results")
	require.NoError(t, os.MkdirAll(resultsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "plot_b.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "plot_a.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "notes.txt"), []byte("txt"), 0o644))

	p := domain.Pipeline{
		Name:      "ci",
		Script:    []domain.Command{"pytest"},
		Artifacts: domain.ArtifactSpec{Dir: "results", Glob: "*.png"},
	}
	runner := &scriptedRunner{results: map[domain.Command]domain.CommandResult{
		"pytest": failExit(1),
	}}
	up := &fakeUploader{url: "https://img.example/abc"}
	var out bytes.Buffer

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{
			Name: "local",
			Vars: domain.Vars{VarUploadURL: "https://img.example/upload"},
		}},
		runner,
		nil,
		WithUploader(up),
		WithWorkDir(dir),
		WithOutput(&out),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)

	job := run.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	require.Len(t, job.Uploads, 2)
	assert.Equal(t, filepath.Join(resultsDir, "plot_a.png"), job.Uploads[0].Path)
	assert.Equal(t, filepath.Join(resultsDir, "plot_b.png"), job.Uploads[1].Path)
	assert.True(t, job.Uploads[0].Success)
	assert.Equal(t, "https://img.example/abc", job.Uploads[0].URL)

	// Each path printed before its upload.
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, filepath.Join(resultsDir, "plot_a.png"), lines[0])

	assert.Equal(t, []string{"https://img.example/upload", "https://img.example/upload"}, up.endpoints)
}

func TestRunPipeline_NoUploadURLSkipsArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "results"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "results", "p.png"), []byte("png"), 0o644))

	p := domain.Pipeline{
		Name:      "ci",
		Script:    []domain.Command{"pytest"},
		Artifacts: domain.ArtifactSpec{Dir: "results", Glob: "*.png"},
	}
	runner := &scriptedRunner{results: map[domain.Command]domain.CommandResult{
		"pytest": failExit(1),
	}}
	up := &fakeUploader{}

	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: p},
		&fakeEnvLoader{env: domain.Environment{Name: "local"}},
		runner,
		nil,
		WithUploader(up),
		WithWorkDir(dir),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)
	assert.Empty(t, run.Jobs[0].Uploads)
	assert.Empty(t, up.paths)
}

func TestRunPipeline_UploadsCoverageOnSuccess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coverage.xml"), []byte("<xml/>"), 0o644))

	up := &fakeUploader{url: "https://cov.example/r/1"}
	uc := NewRunPipeline(
		&fakePipelineLoader{pipeline: singleJobPipeline("ci")},
		&fakeEnvLoader{env: domain.Environment{
			Name: "local",
			Vars: domain.Vars{
				VarCoverageURL:  "https://cov.example/upload",
				VarCoverageFile: "coverage.xml",
			},
		}},
		&scriptedRunner{},
		nil,
		WithUploader(up),
		WithWorkDir(dir),
	)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "local")
	require.NoError(t, err)

	job := run.Jobs[0]
	assert.Equal(t, domain.JobPassed, job.Status)
	require.Len(t, job.Uploads, 1)
	assert.Equal(t, filepath.Join(dir, "coverage.xml"), job.Uploads[0].Path)
	assert.True(t, job.Uploads[0].Success)
	assert.Equal(t, []string{"https://cov.example/upload"}, up.endpoints)
}

func TestRunPipeline_LoadErrorsPropagate(t *testing.T) {
	wantErr := &domain.OpError{Op: "pipeline.load", Kind: domain.KindNotFound}

	uc := NewRunPipeline(
		&fakePipelineLoader{err: wantErr},
		&fakeEnvLoader{},
		&scriptedRunner{},
		nil,
	)

	_, _, err := uc.Execute(context.Background(), "pipelines/nope.yaml", "local")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
