package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/logging"
	"github.com/dshills/conclave/internal/providers"
	"github.com/dshills/conclave/internal/review"
	"github.com/dshills/conclave/internal/ui"
)

// rcAgents is the quick PR council.
var rcAgents = []string{"guardian", "sentinel"}

var formats = []string{"markdown", "json", "junit"}

// Shared review flags
var (
	flagProject        string
	flagFormat         string
	flagCI             bool
	flagDryRun         bool
	flagTimeout        int
	flagProvider       string
	flagModel          string
	flagEndpoint       string
	flagBaseBranch     string
	flagScanDepth      string
	flagNoCache        bool
	flagMetrics        bool
	flagAgent          string
	flagAgents         string
	flagStartFrom      string
	flagSkipSynthesis  bool
	flagSkipValidation bool
	flagStandard       string
	flagProfile        string
	flagAddStandards   string
	flagSkipStandards  string
)

// addRunFlags registers the flags shared by the full review and rc.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagProject, "project", "p", "", "Project path")
	cmd.Flags().StringVarP(&flagFormat, "output-format", "f", "markdown", "Extra report format (markdown, json, junit)")
	cmd.Flags().BoolVar(&flagCI, "ci", false, "CI mode: exit with the verdict code")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Use mock findings (no API calls)")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "Per-agent timeout in minutes (default: agents.timeout)")
	cmd.Flags().StringVar(&flagProvider, "ai-provider", "", "AI provider (anthropic, azure-openai, openai, ollama)")
	cmd.Flags().StringVar(&flagModel, "ai-model", "", "Model override")
	cmd.Flags().StringVar(&flagEndpoint, "ai-endpoint", "", "Endpoint override")
	cmd.Flags().StringVar(&flagBaseBranch, "base-branch", "", "Base branch for diff scoping")
	cmd.Flags().StringVar(&flagScanDepth, "scan-depth", "", "Scan depth (light, standard, deep)")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().BoolVar(&flagMetrics, "metrics", false, "Write Prometheus metrics to reviews/metrics.prom")
	_ = cmd.MarkFlagRequired("project")
}

func addReviewFlags(cmd *cobra.Command) {
	addRunFlags(cmd)
	cmd.Flags().StringVarP(&flagAgent, "agent", "a", "", "Run a single agent")
	cmd.Flags().StringVar(&flagAgents, "agents", "", "Agents to run (comma-separated)")
	cmd.Flags().StringVar(&flagStartFrom, "start-from", "", "Resume from a specific agent")
	cmd.Flags().BoolVar(&flagSkipSynthesis, "skip-synthesis", false, "Stop after the agents and validator")
	cmd.Flags().BoolVar(&flagSkipValidation, "skip-validation", false, "Skip the validator step")
	cmd.Flags().StringVarP(&flagStandard, "standard", "s", "", "Compliance standard ID")
	cmd.Flags().StringVar(&flagProfile, "profile", "", "Compliance profile name")
	cmd.Flags().StringVar(&flagAddStandards, "add-standards", "", "Standards to add (comma-separated)")
	cmd.Flags().StringVar(&flagSkipStandards, "skip-standards", "", "Standards to skip (comma-separated)")
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// selectedAgents merges --agent and --agents. --agent wins.
func selectedAgents() []string {
	if a := strings.TrimSpace(flagAgent); a != "" {
		return []string{strings.ToLower(a)}
	}
	var keys []string
	for _, k := range splitComma(flagAgents) {
		keys = append(keys, strings.ToLower(k))
	}
	return keys
}

func usageErrorf(format string, args ...any) error {
	return &review.ExitError{Code: review.ExitUsage, Err: fmt.Errorf(format, args...)}
}

// buildOptions turns the flags into engine options.
func buildOptions(agentKeys []string) (review.Options, error) {
	if !slices.Contains(formats, flagFormat) {
		return review.Options{}, usageErrorf("invalid output format %q (want %s)", flagFormat, strings.Join(formats, ", "))
	}
	if flagProvider != "" && !slices.Contains(providers.Names, flagProvider) {
		return review.Options{}, usageErrorf("invalid AI provider %q (want %s)", flagProvider, strings.Join(providers.Names, ", "))
	}
	if flagTimeout < 0 {
		return review.Options{}, usageErrorf("timeout must be positive, got %d", flagTimeout)
	}
	return review.Options{
		ProjectPath:    flagProject,
		Version:        version,
		CI:             flagCI,
		DryRun:         flagDryRun,
		Format:         flagFormat,
		Provider:       flagProvider,
		Model:          flagModel,
		Endpoint:       flagEndpoint,
		NoCache:        flagNoCache,
		Metrics:        flagMetrics,
		Timeout:        time.Duration(flagTimeout) * time.Minute,
		BaseBranch:     flagBaseBranch,
		ScanDepth:      flagScanDepth,
		Agents:         agentKeys,
		StartFrom:      strings.ToLower(flagStartFrom),
		SkipSynthesis:  flagSkipSynthesis,
		SkipValidation: flagSkipValidation,
		Standard:       flagStandard,
		Profile:        flagProfile,
		AddStandards:   splitComma(flagAddStandards),
		SkipStandards:  splitComma(flagSkipStandards),
	}, nil
}

// newLogger builds the diagnostics logger from the project's logging
// section. A project that fails to load falls back to the defaults; the
// engine reports the config error itself.
func newLogger(projectPath string) (*zap.SugaredLogger, error) {
	level, asJSON := "", false
	if cfg, err := config.Load(projectPath, config.Overrides{}); err == nil {
		level, asJSON = cfg.Logging.Level, cfg.Logging.JSON
	}
	if flagVerbose {
		level = "debug"
	}
	log, err := logging.New(level, asJSON)
	if err != nil {
		return nil, &review.ExitError{Code: review.ExitInvalidProject, Err: err}
	}
	return log, nil
}

func runReview(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(selectedAgents())
	if err != nil {
		return err
	}
	return execReview(cmd, opts)
}

func execReview(cmd *cobra.Command, opts review.Options) error {
	log, err := newLogger(opts.ProjectPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	eng := &review.Engine{Console: ui.New(cmd.OutOrStdout()), Log: log}
	out, err := eng.Run(cmd.Context(), opts)
	if err != nil {
		var ee *review.ExitError
		if errors.As(err, &ee) {
			return err
		}
		return &review.ExitError{Code: review.ExitRuntime, Err: err}
	}
	exitCode = out.ProcessExitCode()
	return nil
}

var rcCmd = &cobra.Command{
	Use:   "rc",
	Short: "Review council: quick PR check with guardian and sentinel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions(rcAgents)
		if err != nil {
			return err
		}
		return execReview(cmd, opts)
	},
}

func init() {
	addRunFlags(rcCmd)
}
