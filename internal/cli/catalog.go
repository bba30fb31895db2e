package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/agents"
	"github.com/dshills/conclave/internal/compliance"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/licensing"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Review agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents, their license status and local overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		tier := licensing.Current()
		allowed := tier.AllowedAgents()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Tier: %s\n\n", tier)
		for _, d := range agents.All() {
			status := "available"
			if !slices.Contains(allowed, d.Key) {
				status = "requires Pro"
			}
			if _, err := os.Stat(filepath.Join(config.AgentsDir(root), d.Key+".md")); err == nil {
				status += ", custom instructions"
			}
			fmt.Fprintf(out, "  %-10s %-10s %-22s %s\n", d.Key, d.Name, d.Role, status)
		}
		return nil
	},
}

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "Compliance standards",
}

var standardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the compliance standards available to the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}
		dir := cfg.StandardsDir(root)
		list, err := compliance.Available(dir)
		if err != nil {
			return fmt.Errorf("reading standards: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintf(out, "No standards found in %s\n", dir)
			return nil
		}
		effective := cfg.EffectiveStandards("", nil, nil)
		for _, s := range list {
			mark := " "
			if slices.Contains(effective, s.ID) {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-24s %s", mark, s.ID, s.Name)
			if s.Version != "" {
				fmt.Fprintf(out, " (%s)", s.Version)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "\n* applied by default")
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	standardsCmd.AddCommand(standardsListCmd)
	agentsCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "Project path")
	standardsCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "Project path")
}
