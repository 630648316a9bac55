package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gauntletci/gauntlet/internal/infra/fsworkspace"
	"github.com/gauntletci/gauntlet/internal/usecase"
)

func initCmd() *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a Gauntlet workspace skeleton",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("invalid workspace path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return err
			}

			uc := usecase.NewInitWorkspace(fsworkspace.NewInitializer())
			if err := uc.Execute(abs, force); err != nil {
				return err
			}

			fmt.Printf("Workspace created at %s\n", abs)
			return nil
		},
	}

	c.Flags().BoolVar(&force, "force", false, "Overwrite existing workspace files")
	return c
}
