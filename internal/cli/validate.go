package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gauntletci/gauntlet/internal/usecase"
)

func validateCmd() *cobra.Command {
	var workspace string
	var pipeline string
	var env string

	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline and environment (no commands run)",
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

			uc := usecase.NewValidatePipeline(ws.pipelines, ws.envs)
			if err := uc.Execute(cmd.Context(), pipelinePath, envArg); err != nil {
				return err
			}

			fmt.Println("OK")
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name or path (required)")
	c.Flags().StringVarP(&env, "env", "e", "", "Environment name or path (optional; defaults to workspace default env)")

	_ = c.MarkFlagRequired("pipeline")
	return c
}
