package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/conclave/internal/gitctx"
	"github.com/dshills/conclave/internal/review"
)

const (
	hookMarkerStart = "# >>> conclave pre-commit hook >>>"
	hookMarkerEnd   = "# <<< conclave pre-commit hook <<<"
)

var (
	hookFull  bool
	hookDepth string
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git pre-commit hook",
}

// openHook locates the pre-commit hook of the repository containing -p.
func openHook(cmd *cobra.Command) (hookPath string, meta gitctx.RepoMeta, err error) {
	root, err := projectDir(flagProject)
	if err != nil {
		return "", meta, err
	}
	repo, err := gitctx.Open(cmd.Context(), root)
	if err != nil {
		return "", meta, &review.ExitError{Code: review.ExitInvalidProject, Err: err}
	}
	if meta, err = repo.Meta(cmd.Context()); err != nil {
		return "", meta, &review.ExitError{Code: review.ExitInvalidProject, Err: err}
	}
	if hookPath, err = repo.HookPath(cmd.Context(), "pre-commit"); err != nil {
		return "", meta, &review.ExitError{Code: review.ExitInvalidProject, Err: err}
	}
	return hookPath, meta, nil
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Run the review council before every commit",
	Long: `Install a pre-commit hook that runs "conclave rc --ci" (or the full review
with --full). A HOLD verdict blocks the commit; any other failure only warns.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch hookDepth {
		case review.DepthLight, review.DepthStandard, review.DepthDeep:
		default:
			return usageErrorf("invalid scan depth %q (want light, standard or deep)", hookDepth)
		}
		hookPath, meta, err := openHook(cmd)
		if err != nil {
			return err
		}

		section := generateHookScript(hookFull, hookDepth)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading hook file: %w", err)
		}

		var content string
		if len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceConclaveSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			return fmt.Errorf("creating hooks directory: %w", err)
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fmt.Errorf("writing hook file: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed conclave pre-commit hook for %s at %s\n", meta.Root, hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the conclave pre-commit hook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, _, err := openHook(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "No pre-commit hook found.")
				return nil
			}
			return fmt.Errorf("reading hook file: %w", err)
		}

		content := removeConclaveSection(string(existing))

		// Only the shebang left: delete the file.
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				return fmt.Errorf("removing hook file: %w", err)
			}
			fmt.Fprintf(out, "Removed conclave pre-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fmt.Errorf("writing hook file: %w", err)
		}
		fmt.Fprintf(out, "Removed conclave section from %s\n", hookPath)
		return nil
	},
}

func generateHookScript(full bool, depth string) string {
	command := "conclave rc"
	if full {
		command = "conclave"
	}
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	fmt.Fprintf(&b, "%s -p \"$(git rev-parse --show-toplevel)\" --ci --scan-depth %s\n", command, depth)
	b.WriteString("CONCLAVE_EXIT=$?\n")
	b.WriteString("if [ $CONCLAVE_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"conclave: HOLD verdict, commit blocked\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $CONCLAVE_EXIT -ne 0 ]; then\n")
	b.WriteString("  echo \"conclave: review exited with $CONCLAVE_EXIT, allowing commit\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceConclaveSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + section + after
}

func removeConclaveSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "Path inside the git repository")
	hookInstallCmd.Flags().BoolVar(&hookFull, "full", false, "Run the full review instead of the review council")
	hookInstallCmd.Flags().StringVar(&hookDepth, "scan-depth", review.DepthLight, "Scan depth passed to the review")
}
