package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/review"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect conclave configuration",
}

// loadConfig reads the effective configuration of the project at -p.
func loadConfig(o config.Overrides) (string, *config.Config, error) {
	root, err := projectDir(flagProject)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root, o)
	if err != nil {
		return "", nil, &review.ExitError{Code: review.ExitInvalidProject, Err: err}
	}
	return root, cfg, nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  "Print the merged configuration: defaults, .conclave/config.yaml, then CONCLAVE_* environment variables.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the project config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.Path(root))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "Project path")
}
