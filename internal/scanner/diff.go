package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/conclave/internal/gitctx"
)

// ErrNoDiffContext means a diff-scoped context could not be built and the
// caller should fall back to a full scan.
var ErrNoDiffContext = errors.New("no diff context available")

// NoChangedFilesPlaceholder is the content when no changed file was readable.
const NoChangedFilesPlaceholder = "(No readable changed files found)"

// DiffOptions bounds a diff scan. Zero values take the defaults.
type DiffOptions struct {
	BaseBranch   string
	MaxDiffKB    int
	MaxContentKB int
	MaxFileKB    int
	RedactPaths  []string
}

// DiffContext is the output of a diff scan.
type DiffContext struct {
	BaseRef      string
	ChangedFiles []string
	FileContents string
	Diff         string
	Truncated    bool
	FileCount    int
	TotalKB      float64
}

// BaseFromEnv returns the PR target branch exported by GitHub Actions or
// Azure Pipelines, or "".
func BaseFromEnv() string {
	if b := os.Getenv("GITHUB_BASE_REF"); b != "" {
		return b
	}
	return strings.TrimPrefix(os.Getenv("SYSTEM_PULLREQUEST_TARGETBRANCH"), "refs/heads/")
}

// DiffScan builds a context of the files changed against a base branch.
// It returns ErrNoDiffContext when root is not a repository, the base cannot
// be resolved, or nothing changed.
func DiffScan(ctx context.Context, root string, opts DiffOptions) (*DiffContext, error) {
	if opts.MaxDiffKB <= 0 {
		opts.MaxDiffKB = 100
	}
	if opts.MaxContentKB <= 0 {
		opts.MaxContentKB = 200
	}
	if opts.MaxFileKB <= 0 {
		opts.MaxFileKB = 50
	}
	base := opts.BaseBranch
	if base == "" {
		base = BaseFromEnv()
	}
	if base == "" {
		return nil, fmt.Errorf("no base branch: %w", ErrNoDiffContext)
	}

	repo, err := gitctx.Open(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNoDiffContext)
	}
	ref, err := repo.ResolveBase(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNoDiffContext)
	}
	changed, err := repo.ChangedFiles(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNoDiffContext)
	}
	if len(changed) == 0 {
		return nil, fmt.Errorf("no changes against %s: %w", ref, ErrNoDiffContext)
	}

	dc := &DiffContext{BaseRef: ref, ChangedFiles: changed}

	diff, err := repo.Diff(ctx, ref)
	if err != nil {
		diff = "(diff unavailable)"
	}
	if cut, truncated := gitctx.TruncateDiff(diff, opts.MaxDiffKB*1024); truncated {
		diff = cut + fmt.Sprintf("\n\n[Diff truncated at %dKB -- some files omitted. Full file contents included above.]", opts.MaxDiffKB)
		dc.Truncated = true
	}
	dc.Diff = diff

	dc.FileContents, dc.FileCount, dc.TotalKB = changedContents(root, changed, opts)
	return dc, nil
}

func changedContents(root string, changed []string, opts DiffOptions) (string, int, float64) {
	maxFile := int64(opts.MaxFileKB) * 1024
	maxContent := int64(opts.MaxContentKB) * 1024

	var cands []Candidate
	for _, rel := range changed {
		p := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || info.Size() > maxFile || !Eligible(info.Name()) {
			continue
		}
		cands = append(cands, Candidate{Rel: rel, Path: p, Size: info.Size()})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Size < cands[j].Size })

	var blocks []string
	var total int64
	for _, c := range cands {
		if total+c.Size > maxContent {
			continue
		}
		text := readText(c.Path)
		if text == "" {
			continue
		}
		blocks = append(blocks, FileBlock(c.Rel, redactByPath(c.Rel, text, opts.RedactPaths)))
		total += c.Size
	}
	if len(blocks) == 0 {
		return NoChangedFilesPlaceholder, 0, 0
	}
	kb := RoundKB(total)
	header := fmt.Sprintf("# Changed Files (%d files, %s KB)\n\n", len(blocks), FormatKB(kb))
	return header + strings.Join(blocks, "\n"), len(blocks), kb
}
