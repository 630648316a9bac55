package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/infra/httpclient"
	"github.com/gauntletci/gauntlet/internal/infra/runstore"
	"github.com/gauntletci/gauntlet/internal/infra/shellrunner"
	"github.com/gauntletci/gauntlet/internal/infra/uploader"
	"github.com/gauntletci/gauntlet/internal/infra/workspacefinder"
	"github.com/gauntletci/gauntlet/internal/infra/yamlenv"
	"github.com/gauntletci/gauntlet/internal/infra/yamlpipeline"
	"github.com/gauntletci/gauntlet/internal/usecase"
)

func cmdRefreshWorkspace(deps Deps) tea.Cmd {
	return func() tea.Msg {
		wd, err := os.Getwd()
		if err != nil {
			return workspaceRefreshedMsg{cwd: "", found: false, err: fmt.Errorf("getwd: %w", err)}
		}
		if deps.WorkspaceLocator == nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: errors.New("WorkspaceLocator is nil")}
		}

		root, findErr := deps.WorkspaceLocator.FindRoot(wd)
		if findErr != nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: findErr}
		}

		return workspaceRefreshedMsg{cwd: wd, found: true, root: root, err: nil}
	}
}

func cmdInitWorkspaceHere(deps Deps, root string) tea.Cmd {
	return func() tea.Msg {
		if deps.WorkspaceInitializer == nil {
			return initWorkspaceDoneMsg{root: root, err: errors.New("WorkspaceInitializer is nil")}
		}

		err := deps.WorkspaceInitializer.Init(domain.WorkspaceSpec{Root: root}, true)
		return initWorkspaceDoneMsg{root: root, err: err}
	}
}

func cmdLoadPipelines(root string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return pipelinesLoadedMsg{root: root, err: err}
		}

		loader := yamlpipeline.NewLoader(
			yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
		)

		refs, err := loader.ListPipelines(root)
		return pipelinesLoadedMsg{root: root, refs: refs, err: err}
	}
}

func cmdLoadEnvironments(root string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return envsLoadedMsg{root: root, err: err}
		}

		loader := yamlenv.NewLoader(
			root,
			yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir),
		)

		refs, err := loader.ListEnvironments(root)
		return envsLoadedMsg{root: root, refs: refs, err: err}
	}
}

func cmdPreviewPipeline(path string) tea.Cmd {
	return func() tea.Msg {
		p := filepath.Clean(path)

		loader := yamlpipeline.NewLoader()
		pl, err := loader.LoadPipeline(p)
		if err != nil {
			return pipelinePreviewMsg{path: p, preview: "", err: err}
		}

		var b strings.Builder
		b.WriteString("Pipeline: ")
		b.WriteString(pl.Name)
		b.WriteString("\n\n")

		if len(pl.Runtimes) > 0 {
			b.WriteString("Runtimes: ")
			b.WriteString(strings.Join(pl.Runtimes, ", "))
			b.WriteString("\n")
		}

		jobs := pl.Matrix.Expand(pl.Runtimes)
		b.WriteString(fmt.Sprintf("Matrix:   %d job(s)\n\n", len(jobs)))

		for _, phase := range []domain.PhaseName{
			domain.PhaseInstall,
			domain.PhaseBeforeScript,
			domain.PhaseScript,
			domain.PhaseAfterSuccess,
			domain.PhaseAfterFailure,
		} {
			cmds := pl.Phase(phase)
			if len(cmds) == 0 {
				continue
			}
			b.WriteString(string(phase))
			b.WriteString(":\n")
			for _, c := range cmds {
				b.WriteString("  - ")
				b.WriteString(string(c))
				b.WriteString("\n")
			}
		}

		return pipelinePreviewMsg{path: p, preview: b.String(), err: nil}
	}
}

func listenRunner(ch <-chan runnerDoneMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return runnerDoneMsg{err: errors.New("runner channel closed")}
		}
		return msg
	}
}

func startRunAsync(
	workspaceRoot, pipelinePath, envName string,
	log *slog.Logger,
	debug bool,
) (chan runnerDoneMsg, tea.Cmd) {
	ch := make(chan runnerDoneMsg, 1)

	if log == nil {
		log = slog.Default()
	}

	go func() {
		defer close(ch)

		log.Info("run.start",
			"workspace", workspaceRoot,
			"pipeline_path", pipelinePath,
			"env", envName,
			"debug", debug,
		)

		cfg, err := workspacefinder.LoadConfig(workspaceRoot)
		if err != nil {
			log.Error("run.load_config.failed", "err", err)
			ch <- runnerDoneMsg{err: err}
			return
		}

		if envName == "" {
			envName = cfg.Defaults.Environment
		}

		pipelineLoader := yamlpipeline.NewLoader(
			yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
		)
		envLoader := yamlenv.NewLoader(
			workspaceRoot,
			yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir),
		)

		runner := shellrunner.New()
		store := runstore.NewJSONStore(workspaceRoot, cfg, runstore.WithIndex(true))
		up := uploader.New(httpclient.New(httpclient.DefaultConfig()))

		uc := usecase.NewRunPipeline(pipelineLoader, envLoader, runner, store,
			usecase.WithUploader(up),
			usecase.WithWorkDir(workspaceRoot),
			usecase.WithMaxParallel(cfg.Defaults.MaxParallel),
			usecase.WithLogger(log),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		run, id, execErr := uc.Execute(ctx, pipelinePath, envName)

		if execErr != nil {
			log.Error("run.failed", "err", execErr, "saved_id", id)
		} else {
			log.Info("run.ok", "saved_id", id, "failed_jobs", run.FailedJobs())
		}

		for _, job := range run.Jobs {
			if job.Status != domain.JobPassed {
				log.Warn("job.failed",
					"name", job.Name,
					"runtime", job.Runtime,
					"status", string(job.Status),
				)
			} else if debug {
				log.Debug("job.ok",
					"name", job.Name,
					"runtime", job.Runtime,
					"duration_ms", job.FinishedAt.Sub(job.StartedAt).Milliseconds(),
				)
			}
		}

		ch <- runnerDoneMsg{run: run, id: id, err: execErr}
	}()

	return ch, listenRunner(ch)
}
