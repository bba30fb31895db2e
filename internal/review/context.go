package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/redact"
	"github.com/dshills/conclave/internal/scanner"
	"github.com/dshills/conclave/internal/ui"
)

// Scan depths.
const (
	DepthLight    = "light"
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

// ciEnvVars mark a CI runner when any of them is non-empty.
var ciEnvVars = []string{"TF_BUILD", "GITHUB_ACTIONS", "CI", "JENKINS_URL"}

// DetectCI reports whether getenv describes a CI environment.
func DetectCI(getenv func(string) string) bool {
	for _, k := range ciEnvVars {
		if getenv(k) != "" {
			return true
		}
	}
	return false
}

// ResolveDepth applies the default scan depth: light in CI, standard
// otherwise. Unknown depths are an error.
func ResolveDepth(depth string, ci bool) (string, error) {
	switch strings.ToLower(depth) {
	case "":
		if ci {
			return DepthLight, nil
		}
		return DepthStandard, nil
	case DepthLight:
		return DepthLight, nil
	case DepthStandard:
		return DepthStandard, nil
	case DepthDeep:
		return DepthDeep, nil
	}
	return "", fmt.Errorf("unknown scan depth %q (want light, standard or deep)", depth)
}

// Snapshot is the project content gathered for one run.
type Snapshot struct {
	Depth     string
	Tree      string
	Contracts string
	Source    string
	Diff      string
	FileCount int
	BaseRef   string
}

type scanInput struct {
	root        string
	depth       string
	baseBranch  string
	diffAllowed bool
	cfg         *config.Config
}

// takeSnapshot scans the project at the requested depth. A light scan that
// cannot build a diff context falls back to a standard scan.
func takeSnapshot(ctx context.Context, in scanInput, contracts string, con *ui.Console) (*Snapshot, error) {
	snap := &Snapshot{
		Depth:     in.depth,
		Tree:      scanner.FileTree(in.root, 4),
		Contracts: contracts,
	}
	cfg := in.cfg

	if snap.Depth == DepthLight && !in.diffAllowed {
		con.Warn("Diff scoping requires a Pro license; using standard scan")
		snap.Depth = DepthStandard
	}

	if snap.Depth == DepthLight {
		dc, err := scanner.DiffScan(ctx, in.root, scanner.DiffOptions{
			BaseBranch:   in.baseBranch,
			MaxDiffKB:    cfg.Scanner.MaxDiffKB,
			MaxContentKB: cfg.Scanner.MaxContentKB,
			MaxFileKB:    cfg.Scanner.MaxFileKB,
			RedactPaths:  cfg.Privacy.RedactPaths,
		})
		switch {
		case err == nil:
			snap.Source = dc.FileContents
			snap.Diff = dc.Diff
			snap.FileCount = dc.FileCount
			snap.BaseRef = dc.BaseRef
			con.OK("Diff scan: %d changed files (%s KB)", dc.FileCount, scanner.FormatKB(dc.TotalKB))
			return snap, nil
		case errors.Is(err, scanner.ErrNoDiffContext):
			con.Dim("Diff scan unavailable (%v); using standard scan", err)
			snap.Depth = DepthStandard
		default:
			return nil, fmt.Errorf("diff scan: %w", err)
		}
	}

	maxFiles := cfg.Scanner.MaxFiles
	if snap.Depth == DepthDeep {
		maxFiles *= 2
	}
	res, err := scanner.Scan(ctx, in.root, scanner.Options{
		MaxFiles:     maxFiles,
		MaxSizeKB:    cfg.AI.MaxContextKB,
		MinFileBytes: int64(cfg.Scanner.MinFileBytes),
		MaxFileKB:    cfg.Scanner.MaxFileKB,
		RedactPaths:  cfg.Privacy.RedactPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	snap.Source = res.Content
	snap.FileCount = res.FileCount
	con.OK("Tier scan: %d/%d files (%s KB)", res.FileCount, res.TotalEligible, scanner.FormatKB(res.TotalKB))
	return snap, nil
}

// SharedContext renders the context block every agent receives. Secrets are
// scrubbed when redactSecrets is set.
func (s *Snapshot) SharedContext(redactSecrets bool) string {
	var b strings.Builder
	b.WriteString("# CONTRACTS\n\n")
	b.WriteString(s.Contracts)
	b.WriteString("\n\n# PROJECT FILE STRUCTURE\n\n")
	b.WriteString(s.Tree)
	b.WriteString("\n\n# SOURCE FILES\n\n")
	b.WriteString(s.Source)
	if s.Diff != "" {
		b.WriteString("\n\n# GIT DIFF\n\n")
		b.WriteString(s.Diff)
	}
	fmt.Fprintf(&b, "\n\n---\nCONTEXT SUMMARY: You have been provided %d source files. "+
		"Do NOT assume the contents of files not shown above. "+
		"If a file appears in FILE STRUCTURE but NOT in SOURCE FILES, "+
		"cap severity at MEDIUM and note it is unverified.", s.FileCount)

	out := b.String()
	if redactSecrets {
		out = redact.Secrets(out)
	}
	return out
}
