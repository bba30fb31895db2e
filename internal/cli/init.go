package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/agents"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/review"
	"github.com/dshills/conclave/internal/ui"
)

var (
	flagExportAgents bool
	flagForce        bool
)

// projectDir resolves -p to an absolute directory that exists.
func projectDir(p string) (string, error) {
	if p == "" {
		p = "."
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", &review.ExitError{Code: review.ExitInvalidProject, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", &review.ExitError{Code: review.ExitInvalidProject, Err: fmt.Errorf("project path does not exist: %s", p)}
	}
	return abs, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize conclave in a project",
	Long: `Create .conclave/ with a starter config.yaml. With --export-agents the
bundled agent instructions and CONTRACTS.md are copied in for editing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		con := ui.New(cmd.OutOrStdout())

		if err := config.Init(root, version); err != nil {
			return &review.ExitError{Code: review.ExitRuntime, Err: err}
		}
		con.OK("Initialized %s/ in %s", config.DirName, filepath.Base(root))

		if !flagExportAgents {
			return nil
		}
		written, err := agents.Export(config.Dir(root), flagForce)
		if err != nil {
			return &review.ExitError{Code: review.ExitRuntime, Err: err}
		}
		for _, p := range written {
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				rel = p
			}
			con.Dim("wrote %s", filepath.ToSlash(rel))
		}
		con.OK("Exported %d instruction files", len(written))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&flagProject, "project", "p", "", "Project path")
	initCmd.Flags().BoolVar(&flagExportAgents, "export-agents", false, "Copy the bundled agent instructions into .conclave/")
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite exported files that already exist")
	_ = initCmd.MarkFlagRequired("project")
}
