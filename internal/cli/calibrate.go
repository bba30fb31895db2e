package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/calibration"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/review"
)

// Severities a human may assign.
var calibrationSeverities = []string{"BLOCKER", "HIGH", "MEDIUM", "LOW"}

var (
	flagReason      string
	flagSeverity    string
	flagRuleAgent   string
	flagSeverityCap string
)

// located is the finding a calibration command talks about.
type located struct {
	agent    string
	severity string
	title    string
	file     string
}

// lookupFinding finds id in the latest working results. A missing finding
// is not an error: the agent comes from the ID prefix and the severity is
// UNKNOWN.
func lookupFinding(root, id string) (located, error) {
	loc, err := findings.LookupLatest(config.ReviewsDir(root), id)
	switch {
	case err == nil:
		return located{
			agent:    loc.Agent,
			severity: string(loc.Severity),
			title:    loc.Title,
			file:     loc.File,
		}, nil
	case errors.Is(err, findings.ErrNotFound):
		prefix, _, _ := strings.Cut(id, "-")
		return located{agent: strings.ToLower(prefix), severity: "UNKNOWN"}, nil
	default:
		return located{}, &review.ExitError{Code: review.ExitRuntime, Err: err}
	}
}

func addReviewed(root string, e calibration.ReviewedFinding) error {
	store := calibration.New(config.CalibrationPath(root))
	if _, err := store.AddReviewedFinding(e); err != nil {
		return &review.ExitError{Code: review.ExitRuntime, Err: err}
	}
	return nil
}

func savedLine(cmd *cobra.Command, root string) {
	rel, err := filepath.Rel(root, config.CalibrationPath(root))
	if err != nil {
		rel = config.CalibrationPath(root)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", filepath.ToSlash(rel))
}

func checkSeverity(flag, sev string) (string, error) {
	sev = strings.ToUpper(strings.TrimSpace(sev))
	if !slices.Contains(calibrationSeverities, sev) {
		return "", usageErrorf("invalid %s %q (want %s)", flag, sev, strings.Join(calibrationSeverities, ", "))
	}
	return sev, nil
}

var rejectCmd = &cobra.Command{
	Use:     "reject <finding-id>",
	Short:   "Mark a finding as a false positive for future runs",
	Example: `  conclave reject GUARDIAN-002 -p ./repo -r "Admin-only endpoint, parameterized ORM"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		id := args[0]
		loc, err := lookupFinding(root, id)
		if err != nil {
			return err
		}
		if err := addReviewed(root, calibration.ReviewedFinding{
			FindingID:        id,
			Agent:            loc.agent,
			Title:            loc.title,
			File:             loc.file,
			OriginalSeverity: loc.severity,
			AdjustedSeverity: "REJECTED",
			Verdict:          "false_positive",
			Reason:           flagReason,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s: %s\n", id, flagReason)
		savedLine(cmd, root)
		return nil
	},
}

var adjustCmd = &cobra.Command{
	Use:     "adjust <finding-id>",
	Short:   "Record a severity correction for a finding",
	Example: `  conclave adjust SENTINEL-004 -p ./repo -s LOW -r "Covered by integration tests"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sev, err := checkSeverity("severity", flagSeverity)
		if err != nil {
			return err
		}
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		id := args[0]
		loc, err := lookupFinding(root, id)
		if err != nil {
			return err
		}
		if err := addReviewed(root, calibration.ReviewedFinding{
			FindingID:        id,
			Agent:            loc.agent,
			Title:            loc.title,
			File:             loc.file,
			OriginalSeverity: loc.severity,
			AdjustedSeverity: sev,
			Verdict:          "adjusted",
			Reason:           flagReason,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Adjusted %s to %s: %s\n", id, sev, flagReason)
		savedLine(cmd, root)
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:     "confirm <finding-id>",
	Short:   "Confirm a finding as a true positive",
	Example: `  conclave confirm GUARDIAN-001 -p ./repo`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		id := args[0]
		loc, err := lookupFinding(root, id)
		if err != nil {
			return err
		}
		if err := addReviewed(root, calibration.ReviewedFinding{
			FindingID:        id,
			Agent:            loc.agent,
			Title:            loc.title,
			File:             loc.file,
			OriginalSeverity: loc.severity,
			AdjustedSeverity: loc.severity,
			Verdict:          "confirmed",
			Reason:           "Confirmed by human reviewer",
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Confirmed %s as true positive\n", id)
		savedLine(cmd, root)
		return nil
	},
}

var addRuleCmd = &cobra.Command{
	Use:     "add-rule <rule>",
	Short:   "Add a standing project rule for one agent or all of them",
	Example: `  conclave add-rule "Internal admin tools are out of scope" -p ./repo -a guardian --severity-cap LOW`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sevCap string
		if flagSeverityCap != "" {
			c, err := checkSeverity("severity cap", flagSeverityCap)
			if err != nil {
				return err
			}
			sevCap = c
		}
		root, err := projectDir(flagProject)
		if err != nil {
			return err
		}
		store := calibration.New(config.CalibrationPath(root))
		rule, err := store.AddProjectRule(calibration.ProjectRule{
			Rule:        args[0],
			AppliesTo:   flagRuleAgent,
			SeverityCap: sevCap,
		})
		if err != nil {
			return &review.ExitError{Code: review.ExitRuntime, Err: err}
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Added rule: %s\n", rule.Rule)
		if rule.SeverityCap != "" {
			fmt.Fprintf(out, "  Severity cap: %s for %s\n", rule.SeverityCap, rule.AppliesTo)
		}
		savedLine(cmd, root)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{rejectCmd, adjustCmd, confirmCmd, addRuleCmd} {
		cmd.Flags().StringVarP(&flagProject, "project", "p", "", "Project path")
		_ = cmd.MarkFlagRequired("project")
	}

	rejectCmd.Flags().StringVarP(&flagReason, "reason", "r", "", "Why this is a false positive")
	_ = rejectCmd.MarkFlagRequired("reason")

	adjustCmd.Flags().StringVarP(&flagSeverity, "severity", "s", "", "Corrected severity (BLOCKER, HIGH, MEDIUM, LOW)")
	adjustCmd.Flags().StringVarP(&flagReason, "reason", "r", "", "Why the severity should change")
	_ = adjustCmd.MarkFlagRequired("severity")
	_ = adjustCmd.MarkFlagRequired("reason")

	addRuleCmd.Flags().StringVarP(&flagRuleAgent, "agent", "a", calibration.ApplyToAll, "Agent this applies to")
	addRuleCmd.Flags().StringVar(&flagSeverityCap, "severity-cap", "", "Highest severity the agent may report for matching issues")
}
