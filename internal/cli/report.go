package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/agents"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/output"
	"github.com/dshills/conclave/internal/review"
	"github.com/dshills/conclave/internal/synthesis"
)

var (
	reportFormat      string
	reportMaxFindings int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render the last review from its working results",
	Long: `Rebuild the verdict from .conclave/reviews/*-findings.json and print it.
Calibration decisions recorded since the run are not applied; they take
effect on the next review.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}
		w, err := output.GetWriter(strings.ToLower(reportFormat))
		if err != nil {
			return usageErrorf("%v (want %s)", err, strings.Join(output.Formats, ", "))
		}
		switch w := w.(type) {
		case *output.MarkdownWriter:
			w.IncludeEvidence = cfg.Output.IncludeEvidence
			w.IncludeRemediation = cfg.Output.IncludeRemediation
		case *output.JUnitWriter:
			w.FailOn = output.ParseFailOn(cfg.Output.JUnitFailOn)
		case *output.TextWriter:
			w.MaxFindings = reportMaxFindings
		}

		results, err := findings.LoadWorking(config.ReviewsDir(root), agents.Keys())
		if err != nil {
			return &review.ExitError{Code: review.ExitRuntime, Err: err}
		}
		if len(results) == 0 {
			return &review.ExitError{
				Code: review.ExitInvalidProject,
				Err:  fmt.Errorf("no review results in %s; run a review first", config.ReviewsDir(root)),
			}
		}

		name := cfg.Project.Name
		if name == "" {
			name = filepath.Base(root)
		}
		report := synthesis.Build(results, synthesis.Meta{
			Project:     name,
			ProjectPath: root,
			Provider:    cfg.AI.Provider,
			Version:     version,
			Codes: &synthesis.Codes{
				Ship:        cfg.CI.ExitCodes.Ship,
				Conditional: cfg.CI.ExitCodes.Conditional,
				Hold:        cfg.CI.ExitCodes.Hold,
			},
		})
		return w.Write(cmd.OutOrStdout(), report)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&flagProject, "project", "p", ".", "Project path")
	reportCmd.Flags().StringVarP(&reportFormat, "output-format", "f", "text", "Format (text, markdown, json, junit)")
	reportCmd.Flags().IntVar(&reportMaxFindings, "max-findings", 0, "Findings listed in text output (0 = all)")
}
