package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/review"
	"github.com/dshills/conclave/internal/ui"
)

const version = "3.0.0"

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Multi-agent AI release readiness review",
	Long: `Conclave runs a council of AI reviewers over a project, validates their
findings and synthesizes a SHIP / CONDITIONAL / HOLD verdict.

Run without a subcommand to review a project:

  conclave -p ./repo --ci`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runReview,
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = 0

var flagVerbose bool

// Run executes the command tree with the process arguments and returns the
// exit code.
func Run(ctx context.Context) int {
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode = 0
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitCode
	}

	con := ui.New(stderr)
	var ee *review.ExitError
	if errors.As(err, &ee) {
		con.Error("%v", ee)
		return ee.Code
	}
	con.Error("%v", err)
	fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", rootCmd.Name())
	return review.ExitUsage
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print conclave version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "conclave version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	addReviewFlags(rootCmd)

	rootCmd.AddCommand(rcCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(adjustCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(addRuleCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(standardsCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)
}
