package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/usecase"
)

func runCmd() *cobra.Command {
	var workspace string
	var pipeline string
	var env string
	var noSave bool
	var format string
	var maxParallel int

	c := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline's build matrix from a Gauntlet workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			pipelinePath, err := resolvePipelinePath(ws, pipeline)
			if err != nil {
				return err
			}

			envArg, err := resolveEnvironmentArg(ws, env)
			if err != nil {
				return err
			}

			var store = ws.store
			if noSave {
				store = nil
			}

			parallel := maxParallel
			if parallel <= 0 {
				parallel = ws.cfg.Defaults.MaxParallel
			}

			uc := usecase.NewRunPipeline(ws.pipelines, ws.envs, ws.runner, store,
				usecase.WithUploader(ws.uploader),
				usecase.WithWorkDir(ws.root),
				usecase.WithMaxParallel(parallel),
				usecase.WithOutput(os.Stdout),
			)

			run, runID, err := uc.Execute(cmd.Context(), pipelinePath, envArg)
			if err != nil {
				// If save fails we still print what we have before returning.
				_ = printRun(os.Stdout, run, runID, format)
				return err
			}

			if err := printRun(os.Stdout, run, runID, format); err != nil {
				return err
			}

			if fails := run.FailedJobs(); fails > 0 {
				return fmt.Errorf("run failed (%d failed job(s))", fails)
			}
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name or path (required)")
	c.Flags().StringVarP(&env, "env", "e", "", "Environment name or path (optional; defaults to workspace default env)")
	c.Flags().BoolVar(&noSave, "no-save", false, "Do not save run artifact under runs/")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	c.Flags().IntVar(&maxParallel, "max-parallel", 0, "Maximum jobs running at once (0 = workspace default)")

	_ = c.MarkFlagRequired("pipeline")
	return c
}

func printRun(w io.Writer, run domain.RunArtifact, runID string, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		payload := map[string]any{
			"run_id": runID,
			"run":    run,
		}
		return enc.Encode(payload)
	case "pretty", "":
		printPrettyRun(w, run, runID)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func printPrettyRun(w io.Writer, run domain.RunArtifact, runID string) {
	total := run.FinishedAt.Sub(run.StartedAt)
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		total = 0
	}

	fmt.Fprintf(w, "Pipeline: %s\n", run.PipelineName)
	fmt.Fprintf(w, "Env:      %s\n", run.EnvironmentName)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", total)
	if runID != "" {
		fmt.Fprintf(w, "Run ID:   %s\n", runID)
	}
	fmt.Fprintln(w)

	for _, job := range run.Jobs {
		status := "PASS"
		switch job.Status {
		case domain.JobFailed:
			status = "FAIL"
		case domain.JobCanceled:
			status = "CANCELED"
		}

		dur := job.FinishedAt.Sub(job.StartedAt)
		fmt.Fprintf(w, "- [%s] %s  %s\n", status, job.Name, dur.Round(time.Millisecond))

		for _, phase := range job.Phases {
			if len(phase.Commands) == 0 {
				continue
			}
			mark := "✓"
			if phase.Failed() {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s (%d command(s))\n", mark, phase.Phase, len(phase.Commands))

			for _, c := range phase.Commands {
				if !c.Failed() {
					continue
				}
				if c.Error != nil {
					fmt.Fprintf(w, "    ✗ %s — %s (%s)\n", c.Command, c.Error.Message, c.Error.Kind)
				} else {
					fmt.Fprintf(w, "    ✗ %s — exit %d\n", c.Command, c.ExitCode)
				}
			}
		}

		if len(job.Checks) > 0 {
			pass, fail := countCheckPassFail(job.Checks)
			fmt.Fprintf(w, "  checks: %d pass / %d fail\n", pass, fail)
			for _, c := range job.Checks {
				mark := "✓"
				if !c.Passed {
					mark = "✗"
				}
				fmt.Fprintf(w, "    %s %s — %s\n", mark, c.Name, c.Message)
			}
		}

		if len(job.Extracted) > 0 {
			fmt.Fprintf(w, "  extracted vars:\n")
			for k, v := range job.Extracted {
				fmt.Fprintf(w, "    - %s = %s\n", k, v)
			}
		}

		for _, up := range job.Uploads {
			mark := "✓"
			if !up.Success {
				mark = "✗"
			}
			if up.URL != "" {
				fmt.Fprintf(w, "  %s uploaded %s -> %s\n", mark, up.Path, up.URL)
			} else {
				fmt.Fprintf(w, "  %s uploaded %s %s\n", mark, up.Path, up.Message)
			}
		}

		fmt.Fprintln(w)
	}
}

func countCheckPassFail(in []domain.CheckResult) (pass int, fail int) {
	for _, c := range in {
		if c.Passed {
			pass++
		} else {
			fail++
		}
	}
	return pass, fail
}
