package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/providers"
	"github.com/dshills/conclave/internal/redact"
	"github.com/dshills/conclave/internal/review"
)

const doctorTimeout = 30 * time.Second

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "AI provider management",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported providers and their default models",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, name := range providers.Names {
			cfg := config.Default()
			cfg.AI.Provider = name
			sec := cfg.ProviderSection()

			fmt.Fprintf(out, "%s:\n", name)
			if sec.Deployment != "" {
				fmt.Fprintf(out, "  deployment:      %s\n", sec.Deployment)
				fmt.Fprintf(out, "  lite deployment: %s\n", sec.LiteDeployment)
			} else {
				fmt.Fprintf(out, "  model:      %s\n", sec.Model)
				fmt.Fprintf(out, "  lite model: %s\n", sec.LiteModel)
			}
			if sec.APIKeyEnv != "" {
				fmt.Fprintf(out, "  key env:    %s\n", sec.APIKeyEnv)
			}
			fmt.Fprintln(out)
		}
	},
}

var providersDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate provider credentials with a one-token request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig(config.Overrides{
			Provider: flagProvider,
			Model:    flagModel,
			Endpoint: flagEndpoint,
			NoCache:  true,
		})
		if err != nil {
			return err
		}
		log, err := newLogger(root)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checking %s...\n", cfg.AI.Provider)

		p, err := review.NewProvider(cfg, root, log)
		if err != nil {
			return &review.ExitError{Code: review.ExitProviderInit, Err: redact.Error(err)}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		defer cancel()

		if _, err := p.Complete(ctx, providers.Request{
			SystemPrompt: "Respond with exactly: ok",
			UserPrompt:   "ping",
			Tier:         providers.TierLite,
			MaxTokens:    10,
		}); err != nil {
			return &review.ExitError{Code: review.ExitRuntime, Err: redact.Error(err)}
		}

		fmt.Fprintf(out, "OK: %s is configured and responding\n", cfg.AI.Provider)
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersDoctorCmd)
	providersDoctorCmd.Flags().StringVarP(&flagProject, "project", "p", ".", "Project path")
	providersDoctorCmd.Flags().StringVar(&flagProvider, "ai-provider", "", "Provider to check")
	providersDoctorCmd.Flags().StringVar(&flagModel, "ai-model", "", "Model override")
	providersDoctorCmd.Flags().StringVar(&flagEndpoint, "ai-endpoint", "", "Endpoint override")
}
